package models

// AuthMode selects between the hosted service and a self-hosted install.
type AuthMode string

const (
	AuthModeCloud    AuthMode = "cloud"
	AuthModeSelfhost AuthMode = "selfhost"
)

// AuthSession is the authenticated account the agent acts on behalf of.
type AuthSession struct {
	Mode         AuthMode `json:"mode"`
	BaseURL      string   `json:"baseUrl"`
	Email        string   `json:"email"`
	APIToken     string   `json:"apiToken"`
	APISecret    string   `json:"apiSecret,omitempty"`
	AccountLabel string   `json:"accountLabel"`
	AccountKey   string   `json:"accountKey"`
}

// LoginInput carries the credentials for a login attempt.
type LoginInput struct {
	Mode     AuthMode `json:"mode"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	OTP      string   `json:"otp,omitempty"`
	URL      string   `json:"url,omitempty"`
	Secret   string   `json:"secret,omitempty"`
}
