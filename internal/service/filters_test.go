package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeFilterSelection(t *testing.T) {
	assert.Equal(t, FilterValueAll, NormalizeFilterSelection(""))
	assert.Equal(t, FilterValueAll, NormalizeFilterSelection("   "))
	assert.Equal(t, "s1", NormalizeFilterSelection(" s1 "))
	assert.Equal(t, FilterValueNone, NormalizeFilterSelection("none"))
}

func TestToAPIFilterValue(t *testing.T) {
	assert.Equal(t, "", ToAPIFilterValue(""))
	assert.Equal(t, "", ToAPIFilterValue(FilterValueAll))
	assert.Equal(t, "", ToAPIFilterValue(FilterValueNone))
	assert.Equal(t, "p7", ToAPIFilterValue("p7"))
}

func TestMatchesFilterSelection(t *testing.T) {
	assert.True(t, MatchesFilterSelection("", "anything"))
	assert.True(t, MatchesFilterSelection(FilterValueAll, ""))
	assert.True(t, MatchesFilterSelection(FilterValueNone, "  "))
	assert.False(t, MatchesFilterSelection(FilterValueNone, "p1"))
	assert.True(t, MatchesFilterSelection("p1", "p1"))
	assert.False(t, MatchesFilterSelection("p1", "p2"))
}
