// Package reconcile implements the tag reconciliation engine: it diffs the
// session's observed tag set against the expected master set and drives
// at-most-once inventoried transitions against the remote store.
package reconcile

import (
	"sort"

	"github.com/kandelab/stocktake/internal/catalog"
	"github.com/kandelab/stocktake/internal/model"
)

// Result is the classification of every known tag. The four lists are
// pairwise disjoint: matched ∪ missing covers the master set, matched ∪
// unexpected covers the observed set.
type Result struct {
	Scope model.TargetScope `json:"scope"`
	// MatchedPending: expected and observed, not yet inventoried.
	MatchedPending []string `json:"matched_pending"`
	// MatchedConfirmed: expected, observed and already inventoried.
	MatchedConfirmed []string `json:"matched_confirmed"`
	// Missing: expected but not observed.
	Missing []string `json:"missing"`
	// Unexpected: observed but not expected.
	Unexpected []string `json:"unexpected"`
}

// Classify computes the set algebra between the observed set and the master
// index. Pure function: no side effects, no I/O, O(observed + master).
func Classify(observed model.TagSet, master *catalog.View) Result {
	res := Result{
		Scope:            master.Scope(),
		MatchedPending:   []string{},
		MatchedConfirmed: []string{},
		Missing:          []string{},
		Unexpected:       []string{},
	}

	for tag := range master.Tags() {
		if !observed.Contains(tag) {
			res.Missing = append(res.Missing, tag)
			continue
		}
		item, _ := master.Item(tag)
		if item.Inventoried {
			res.MatchedConfirmed = append(res.MatchedConfirmed, tag)
		} else {
			res.MatchedPending = append(res.MatchedPending, tag)
		}
	}

	for tag := range observed {
		if _, ok := master.Item(tag); !ok {
			res.Unexpected = append(res.Unexpected, tag)
		}
	}

	sort.Strings(res.MatchedPending)
	sort.Strings(res.MatchedConfirmed)
	sort.Strings(res.Missing)
	sort.Strings(res.Unexpected)
	return res
}

// Matched returns the union of pending and confirmed matches.
func (r Result) Matched() int {
	return len(r.MatchedPending) + len(r.MatchedConfirmed)
}
