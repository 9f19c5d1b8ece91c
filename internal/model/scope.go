package model

import "github.com/rotisserie/eris"

// TargetScope partitions the catalog by business category. Every catalog
// entry belongs to exactly one scope and a reconciliation session operates
// on a single scope at a time.
type TargetScope string

const (
	ScopeClinic      TargetScope = "clinic"
	ScopeCardShop    TargetScope = "card_shop"
	ScopeApparelShop TargetScope = "apparel_shop"
)

// Scopes lists all valid target scopes.
var Scopes = []TargetScope{ScopeClinic, ScopeCardShop, ScopeApparelShop}

// ParseScope validates a raw scope string.
func ParseScope(s string) (TargetScope, error) {
	for _, sc := range Scopes {
		if string(sc) == s {
			return sc, nil
		}
	}
	return "", eris.Errorf("model: unknown target scope %q", s)
}

// Valid reports whether the scope is one of the known categories.
func (s TargetScope) Valid() bool {
	_, err := ParseScope(string(s))
	return err == nil
}

func (s TargetScope) String() string { return string(s) }
