// Package changeset implements capi's code-change detector (spec.md §4.6,
// C9): given the function hashes from the previous build and the function
// hashes of a fresh build, classify every function in the new build as
// Unchanged, Updated or Added.
//
// Grounded on original_source/capi/compiler/src/passes/detect_changes.rs,
// which resolves this module's spec.md §9 ambiguity: a function counts as
// Unchanged if ANY function in the previous build has the same hash,
// regardless of whether it shared the same name - not only when the same
// name's hash is unchanged. This matters for the hot-update path (spec.md
// §4.10): renaming a function whose body is otherwise untouched must not be
// treated as replacing a live, running function.
package changeset

import "github.com/artisdom/caterpillar/lang/fragment"

// Status classifies one function across a hot-update boundary.
type Status uint8

//nolint:revive
const (
	Unchanged Status = iota
	Updated
	Added
)

func (s Status) String() string {
	switch s {
	case Unchanged:
		return "Unchanged"
	case Updated:
		return "Updated"
	case Added:
		return "Added"
	default:
		return "<invalid status>"
	}
}

// Change is one function's classification in a new build relative to an old
// one.
type Change struct {
	Name   string
	Hash   fragment.Hash
	Status Status
}

// Detect classifies every function named in newHashes. oldHashes is the
// name -> hash map from the previous build (spec.md §4.6 "previously
// compiled source map").
func Detect(oldHashes map[string]fragment.Hash, newHashes map[string]fragment.Hash, order []string) []Change {
	oldHashSet := make(map[fragment.Hash]bool, len(oldHashes))
	for _, h := range oldHashes {
		oldHashSet[h] = true
	}

	changes := make([]Change, 0, len(order))
	for _, name := range order {
		h := newHashes[name]
		c := Change{Name: name, Hash: h}
		switch {
		case oldHashSet[h]:
			c.Status = Unchanged
		case hasName(oldHashes, name):
			c.Status = Updated
		default:
			c.Status = Added
		}
		changes = append(changes, c)
	}
	return changes
}

func hasName(m map[string]fragment.Hash, name string) bool {
	_, ok := m[name]
	return ok
}
