package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// CatalogEntry is a row of the inventory master catalog. Entries are
// immutable for the duration of a reconciliation session.
type CatalogEntry struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Notes       string      `json:"notes,omitempty"`
	Extra       string      `json:"extra,omitempty"`
	ProductCode string      `json:"product_code,omitempty"`
	ImageURL    string      `json:"image_url,omitempty"`
	Scope       TargetScope `json:"target"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TrackedItem joins a physical tag to a catalog entry. Within a loaded scope
// the tag ID is unique. Inventoried is the only field the reconciliation
// core mutates.
type TrackedItem struct {
	ID          string    `json:"id"`
	TagID       string    `json:"tag_id"`
	MasterID    string    `json:"master_id"`
	Inventoried bool      `json:"is_inventoried"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ItemState is the per-item confirm state machine.
type ItemState int

const (
	// StatePending means inventoried=false and no confirm in flight.
	StatePending ItemState = iota
	// StateConfirmInFlight means a remote update has been issued and has
	// not yet resolved.
	StateConfirmInFlight
	// StateConfirmed means inventoried=true.
	StateConfirmed
)

func (s ItemState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmInFlight:
		return "confirm_in_flight"
	case StateConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Field length limits for catalog entry forms.
const (
	MaxNameLen        = 100
	MaxNotesLen       = 500
	MaxExtraLen       = 50
	MaxProductCodeLen = 50
)

// MasterParams carries the writable fields of a catalog entry.
type MasterParams struct {
	Name        string      `json:"name"`
	Notes       string      `json:"notes,omitempty"`
	Extra       string      `json:"extra,omitempty"`
	ProductCode string      `json:"product_code,omitempty"`
	ImageURL    string      `json:"image_url,omitempty"`
	Scope       TargetScope `json:"target"`
}

// Validate checks form-level constraints before the params reach the store.
func (p MasterParams) Validate() error {
	switch {
	case p.Name == "":
		return eris.New("model: master name is required")
	case len(p.Name) > MaxNameLen:
		return eris.Errorf("model: master name exceeds %d characters", MaxNameLen)
	case len(p.Notes) > MaxNotesLen:
		return eris.Errorf("model: master notes exceed %d characters", MaxNotesLen)
	case len(p.Extra) > MaxExtraLen:
		return eris.Errorf("model: master extra field exceeds %d characters", MaxExtraLen)
	case len(p.ProductCode) > MaxProductCodeLen:
		return eris.Errorf("model: product code exceeds %d characters", MaxProductCodeLen)
	case !p.Scope.Valid():
		return eris.Errorf("model: invalid target scope %q", string(p.Scope))
	}
	return nil
}
