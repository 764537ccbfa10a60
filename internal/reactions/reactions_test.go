package reactions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bayou/internal/models"
)

const (
	alice = "7f0c2b34-9a11-4d7e-8c55-0f4a9b1c2d3e"
	bob   = "1a2b3c4d-5e6f-4a8b-9c0d-1e2f3a4b5c6d"
)

func TestToggleSetsAndClears(t *testing.T) {
	flat := Toggle(nil, models.VoteUp, alice)
	assert.Equal(t, map[string]bool{"up_" + alice: true}, flat)

	// Toggling the same symbol again clears it.
	flat = Toggle(flat, models.VoteUp, alice)
	assert.Empty(t, flat)
}

func TestToggleVoteExclusivity(t *testing.T) {
	flat := Toggle(nil, models.VoteUp, alice)
	flat = Toggle(flat, models.VoteDown, alice)

	// Switching vote direction clears the opposite vote in the same step.
	assert.Equal(t, map[string]bool{"down_" + alice: true}, flat)

	tally := Compute(flat, alice)
	assert.Equal(t, models.VoteDown, tally.UserVote)
	assert.Equal(t, -1, tally.Score)
}

func TestToggleCustomSymbolIndependent(t *testing.T) {
	flat := Toggle(nil, models.VoteUp, alice)
	flat = Toggle(flat, "fire", alice)

	// A custom reaction coexists with the vote.
	assert.True(t, flat["up_"+alice])
	assert.True(t, flat["fire_"+alice])

	// Clearing the custom reaction leaves the vote alone.
	flat = Toggle(flat, "fire", alice)
	assert.Equal(t, map[string]bool{"up_" + alice: true}, flat)
}

func TestTogglePure(t *testing.T) {
	original := map[string]bool{"up_" + alice: true}
	_ = Toggle(original, models.VoteDown, alice)
	assert.Equal(t, map[string]bool{"up_" + alice: true}, original)
}

func TestComputeScoreAndPerSymbol(t *testing.T) {
	var flat map[string]bool
	flat = Toggle(flat, models.VoteUp, alice)
	flat = Toggle(flat, models.VoteUp, bob)
	flat = Toggle(flat, "fire", bob)

	tally := Compute(flat, bob)
	assert.Equal(t, 2, tally.Score)
	assert.Equal(t, map[string]int{"up": 2, "fire": 1}, tally.PerSymbol)
	assert.Equal(t, models.VoteUp, tally.UserVote)

	flat = Toggle(flat, models.VoteDown, bob)
	tally = Compute(flat, bob)
	assert.Equal(t, 0, tally.Score)
	assert.Equal(t, models.VoteDown, tally.UserVote)

	// A viewer with no reactions sees no UserVote.
	assert.Empty(t, Compute(flat, "someone-else").UserVote)
}

func TestComputeMalformedKeysSkipped(t *testing.T) {
	flat := map[string]bool{
		"up_" + alice: true,
		"noseparator": true,  // no underscore
		"_" + alice:   true,  // empty symbol
		"up_":         true,  // empty uid
		"down_" + bob: false, // cleared entry
	}
	tally := Compute(flat, alice)
	assert.Equal(t, 1, tally.Score)
	assert.Equal(t, map[string]int{"up": 1}, tally.PerSymbol)
}

func TestReactors(t *testing.T) {
	var flat map[string]bool
	flat = Toggle(flat, "fire", bob)
	flat = Toggle(flat, "fire", alice)

	uids := Reactors(flat, "fire")
	assert.Equal(t, []string{bob, alice}, uids) // sorted; bob's uid sorts first
	assert.Empty(t, Reactors(flat, "up"))
}

func TestValidSymbol(t *testing.T) {
	assert.True(t, ValidSymbol("up"))
	assert.True(t, ValidSymbol("fire"))
	assert.False(t, ValidSymbol(""))
	assert.False(t, ValidSymbol("thumbs_up")) // separator collides with encoding
	assert.False(t, ValidSymbol("this-symbol-name-is-far-too-long-to-store"))
}
