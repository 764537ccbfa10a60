package models

// Vote symbols are the two reserved reaction symbols with mutual-exclusion
// semantics. Any other symbol is a free-form custom reaction.
const (
	VoteUp   = "up"
	VoteDown = "down"
)

// IsVoteSymbol reports whether symbol is one of the two reserved vote
// symbols, as opposed to a custom reaction.
func IsVoteSymbol(symbol string) bool {
	return symbol == VoteUp || symbol == VoteDown
}
