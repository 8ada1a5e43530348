package tracker

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// UntitledLabel is the sentinel workspace label for unsaved buffers and
// the final fallback when nothing about the environment is known.
const UntitledLabel = "Untitled document"

// ActiveDocument is a snapshot of the editor's focus, reported by the
// editor plugin. The agent never introspects the host environment
// itself; everything it knows about "where the user is working" comes
// through this type.
type ActiveDocument struct {
	// HasDocument is false when no editor is focused.
	HasDocument bool `json:"hasDocument"`
	// WorkspaceFolder is the name of the workspace folder containing
	// the document, if any.
	WorkspaceFolder string `json:"workspaceFolder,omitempty"`
	// Untitled marks unsaved buffers.
	Untitled bool `json:"untitled,omitempty"`
	// Scheme is the document URI scheme ("file", "untitled", ...).
	Scheme string `json:"scheme,omitempty"`
	// FsPath is the filesystem path for file-scheme documents.
	FsPath string `json:"fsPath,omitempty"`
	// URIPath is the raw (possibly percent-encoded) URI path.
	URIPath string `json:"uriPath,omitempty"`
	// FileName is the editor's notion of the document's file name.
	FileName string `json:"fileName,omitempty"`
	// RootWorkspaceFolder is the name of the first workspace folder.
	RootWorkspaceFolder string `json:"rootWorkspaceFolder,omitempty"`
	// WorkspaceFilePath is the path of the .code-workspace file, if
	// the window has one.
	WorkspaceFilePath string `json:"workspaceFilePath,omitempty"`
}

// ResolveWorkspaceLabel maps an editor snapshot to the workspace label
// recorded in worklog entries. Each step is a fallback for the
// previous one; the chain always produces a non-empty label.
func ResolveWorkspaceLabel(doc ActiveDocument) string {
	if doc.HasDocument {
		if folder := strings.TrimSpace(doc.WorkspaceFolder); folder != "" {
			return folder
		}

		if doc.Untitled || doc.Scheme == "untitled" {
			return UntitledLabel
		}

		if doc.Scheme == "file" && doc.FsPath != "" {
			if name := strings.TrimSpace(filepath.Base(doc.FsPath)); name != "" && name != "." && name != string(filepath.Separator) {
				return name
			}
			if parent := strings.TrimSpace(filepath.Base(filepath.Dir(doc.FsPath))); parent != "" && parent != "." && parent != string(filepath.Separator) {
				return parent
			}
		}

		if doc.URIPath != "" {
			if name := strings.TrimSpace(path.Base(doc.URIPath)); name != "" && name != "." && name != "/" {
				if decoded, err := url.PathUnescape(name); err == nil {
					return decoded
				}
				return name
			}
		}
	}

	if doc.FileName != "" {
		if name := strings.TrimSpace(filepath.Base(doc.FileName)); name != "" && name != "." && name != string(filepath.Separator) {
			return name
		}
	}

	if root := strings.TrimSpace(doc.RootWorkspaceFolder); root != "" {
		return root
	}

	if doc.WorkspaceFilePath != "" {
		base := filepath.Base(doc.WorkspaceFilePath)
		if name := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base))); name != "" && name != "." {
			return name
		}
	}

	return UntitledLabel
}

// WorkspaceTracker turns the stream of active-document snapshots into
// workspace-change callbacks. Snapshots that resolve to the current
// label are dropped; only genuine switches reach the callback.
type WorkspaceTracker struct {
	onChange func(label string)
	logger   *zap.Logger

	mu           sync.RWMutex
	currentLabel string
}

// NewWorkspaceTracker creates a tracker that invokes onChange with the
// resolved label whenever the active workspace switches.
func NewWorkspaceTracker(onChange func(label string), logger *zap.Logger) *WorkspaceTracker {
	return &WorkspaceTracker{
		onChange: onChange,
		logger:   logger,
	}
}

// Update records a new editor snapshot. The callback runs outside the
// tracker's lock so it is free to call back into CurrentLabel.
func (wt *WorkspaceTracker) Update(doc ActiveDocument) {
	label := ResolveWorkspaceLabel(doc)

	wt.mu.Lock()
	changed := label != wt.currentLabel
	if changed {
		wt.currentLabel = label
	}
	wt.mu.Unlock()

	if !changed {
		return
	}

	wt.logger.Debug("Workspace changed", zap.String("label", label))
	if wt.onChange != nil {
		wt.onChange(label)
	}
}

// CurrentLabel returns the label of the last reported snapshot, or the
// untitled sentinel before any snapshot arrives.
func (wt *WorkspaceTracker) CurrentLabel() string {
	wt.mu.RLock()
	defer wt.mu.RUnlock()

	if wt.currentLabel == "" {
		return UntitledLabel
	}
	return wt.currentLabel
}
