package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMasterParamsValidate(t *testing.T) {
	valid := MasterParams{Name: "Booster Box", Scope: ScopeCardShop}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*MasterParams)
		want   string
	}{
		{"missing name", func(p *MasterParams) { p.Name = "" }, "name is required"},
		{"name too long", func(p *MasterParams) { p.Name = strings.Repeat("x", MaxNameLen+1) }, "name exceeds"},
		{"notes too long", func(p *MasterParams) { p.Notes = strings.Repeat("x", MaxNotesLen+1) }, "notes exceed"},
		{"extra too long", func(p *MasterParams) { p.Extra = strings.Repeat("x", MaxExtraLen+1) }, "extra field exceeds"},
		{"product code too long", func(p *MasterParams) { p.ProductCode = strings.Repeat("x", MaxProductCodeLen+1) }, "product code exceeds"},
		{"bad scope", func(p *MasterParams) { p.Scope = "warehouse" }, "invalid target scope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseScope(t *testing.T) {
	for _, s := range []string{"clinic", "card_shop", "apparel_shop"} {
		sc, err := ParseScope(s)
		require.NoError(t, err)
		assert.Equal(t, s, sc.String())
		assert.True(t, sc.Valid())
	}

	_, err := ParseScope("warehouse")
	require.Error(t, err)
	assert.False(t, TargetScope("warehouse").Valid())
	assert.False(t, TargetScope("").Valid())
}

func TestItemStateString(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "confirm_in_flight", StateConfirmInFlight.String())
	assert.Equal(t, "confirmed", StateConfirmed.String())
	assert.Equal(t, "unknown", ItemState(99).String())
}
