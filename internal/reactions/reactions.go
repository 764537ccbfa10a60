// Package reactions encodes votes and emoji reactions for a commentable
// entity. The persisted form is a flat boolean map keyed "<symbol>_<uid>";
// internally everything works on a symbol → uid-set table so no string
// parsing leaks past the store boundary.
//
// Toggle and Tally are pure: they never mutate their input and perform no
// I/O. Callers persist the returned map.
package reactions

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"bayou/internal/models"
)

// Tally is the aggregate view of one reactions map for one viewer.
type Tally struct {
	Score     int            // count(up) - count(down); custom symbols not folded in
	PerSymbol map[string]int // every symbol present, including votes
	UserVote  string         // "up", "down" or "" for the given uid
}

// table is the internal two-level representation.
type table map[string]map[string]bool

// Toggle flips uid's reaction for symbol and returns the resulting flat
// map. Vote symbols are mutually exclusive per uid: toggling one clears
// the other first. Toggling an already-set symbol clears it. Custom
// symbols toggle independently and never touch other keys.
func Toggle(flat map[string]bool, symbol, uid string) map[string]bool {
	t := decode(flat)

	if t[symbol][uid] {
		delete(t[symbol], uid)
		return encode(t)
	}

	if models.IsVoteSymbol(symbol) {
		other := models.VoteUp
		if symbol == models.VoteUp {
			other = models.VoteDown
		}
		delete(t[other], uid)
	}

	if t[symbol] == nil {
		t[symbol] = make(map[string]bool)
	}
	t[symbol][uid] = true
	return encode(t)
}

// Compute tallies the map for the given viewer uid. A nil or malformed
// map tallies as empty; no input is an error.
func Compute(flat map[string]bool, uid string) Tally {
	t := decode(flat)

	tally := Tally{PerSymbol: make(map[string]int, len(t))}
	for symbol, uids := range t {
		tally.PerSymbol[symbol] = len(uids)
		if uids[uid] && models.IsVoteSymbol(symbol) {
			tally.UserVote = symbol
		}
	}
	tally.Score = tally.PerSymbol[models.VoteUp] - tally.PerSymbol[models.VoteDown]
	return tally
}

// Reactors returns the uids that set symbol, sorted for stable rendering.
func Reactors(flat map[string]bool, symbol string) []string {
	uids := lo.Keys(decode(flat)[symbol])
	sort.Strings(uids)
	return uids
}

// decode parses the flat encoding into the two-level table. Keys without
// a separator or with the value false are skipped, not rejected.
func decode(flat map[string]bool) table {
	t := make(table)
	for key, set := range flat {
		if !set {
			continue
		}
		idx := strings.IndexByte(key, '_')
		if idx <= 0 || idx == len(key)-1 {
			continue
		}
		symbol, uid := key[:idx], key[idx+1:]
		if t[symbol] == nil {
			t[symbol] = make(map[string]bool)
		}
		t[symbol][uid] = true
	}
	return t
}

func encode(t table) map[string]bool {
	flat := make(map[string]bool)
	for symbol, uids := range t {
		for uid := range uids {
			flat[symbol+"_"+uid] = true
		}
	}
	return flat
}

// ValidSymbol reports whether symbol can be stored in the flat encoding:
// non-empty, short, and free of the key separator.
func ValidSymbol(symbol string) bool {
	return symbol != "" && len(symbol) <= 32 && !strings.ContainsRune(symbol, '_')
}
