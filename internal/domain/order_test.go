package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderCommentRoundTrip(t *testing.T) {
	comment := OrderComment("a1b2c3d4e5f6", 2)
	assert.Equal(t, "a1b2c3d4e5f6_s2", comment)

	fp, slot, ok := ParseOrderComment(comment)
	require.True(t, ok)
	assert.Equal(t, "a1b2c3d4e5f6", fp)
	assert.Equal(t, 2, slot)
}

func TestParseOrderCommentRejectsForeign(t *testing.T) {
	for _, comment := range []string{
		"",
		"manual trade",
		"_s1",
		"a1b2c3d4e5f6_s0",
		"a1b2c3d4e5f6_sx",
		"a1b2c3d4e5f6",
	} {
		_, _, ok := ParseOrderComment(comment)
		assert.False(t, ok, "comment %q", comment)
	}
}
