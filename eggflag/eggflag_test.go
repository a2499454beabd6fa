package eggflag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cartsync/models"
)

func truePtr() *bool  { b := true; return &b }
func falsePtr() *bool { b := false; return &b }

// TestResolve_TextHints verifies the label classification rules: negative
// phrases win over residual "egg" matches, token sets are exact, and
// unmatched labels stay unknown.
func TestResolve_TextHints(t *testing.T) {
	t.Parallel()

	cases := []struct {
		label string
		want  *bool
	}{
		{"eggless", falsePtr()},
		{"Eggless Chocolate", falsePtr()},
		{"no egg", falsePtr()},
		{"egg free", falsePtr()},
		{"Egg-Free", falsePtr()},
		{"without egg", falsePtr()},
		{"Pure Veg", falsePtr()},
		{"veg only", falsePtr()},
		{"with egg", truePtr()},
		{"Contains Egg", truePtr()},
		{"has egg", truePtr()},
		{"egg-based", truePtr()},
		{"egg", truePtr()},
		{"Double Egg Cake", truePtr()},
		{"true", truePtr()},
		{"  YES  ", truePtr()},
		{"y", truePtr()},
		{"1", truePtr()},
		{"false", falsePtr()},
		{"No", falsePtr()},
		{"n", falsePtr()},
		{"0", falsePtr()},
		{"chocolate", nil},
		{"", nil},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.label, func(t *testing.T) {
			t.Parallel()
			p := &models.Product{ID: "p1"}
			p.EggLabel = tc.label
			got := Resolve(p, 0)
			if tc.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tc.want, *got)
			}
		})
	}
}

// TestResolve_NumericAndBoolHints verifies boolean passthrough and 1/0
// numeric flags; other numbers are not decisive.
func TestResolve_NumericAndBoolHints(t *testing.T) {
	t.Parallel()

	p := &models.Product{ID: "p1"}
	p.Egg = float64(1)
	require.NotNil(t, Resolve(p, 0))
	assert.True(t, *Resolve(p, 0))

	p.Egg = float64(0)
	require.NotNil(t, Resolve(p, 0))
	assert.False(t, *Resolve(p, 0))

	p.Egg = float64(7)
	assert.Nil(t, Resolve(p, 0))

	p.Egg = true
	require.NotNil(t, Resolve(p, 0))
	assert.True(t, *Resolve(p, 0))
}

// TestResolve_VariantPrecedence verifies the selected variant's explicit
// flag beats every other source, and variant hints beat product hints.
func TestResolve_VariantPrecedence(t *testing.T) {
	t.Parallel()

	p := &models.Product{
		ID: "p1",
		Variants: []models.Variant{
			{Name: "regular"},
			{Name: "special", HasEgg: falsePtr()},
		},
	}
	p.EggLabel = "with egg"

	got := Resolve(p, 1)
	require.NotNil(t, got)
	assert.False(t, *got, "explicit variant flag must win over product label")

	got = Resolve(p, 0)
	require.NotNil(t, got)
	assert.True(t, *got, "variant without hints falls through to product label")

	p.Variants[0].EggType = "eggless"
	got = Resolve(p, 0)
	require.NotNil(t, got)
	assert.False(t, *got, "variant hint must win over product label")
}

// TestResolve_NestedSources verifies extra-fields and nested details are
// searched after the top-level product.
func TestResolve_NestedSources(t *testing.T) {
	t.Parallel()

	p := &models.Product{ID: "p1"}
	p.ExtraFields = map[string]any{"isEgg": "no egg"}
	got := Resolve(p, 0)
	require.NotNil(t, got)
	assert.False(t, *got)

	p = &models.Product{ID: "p2", Details: &models.ProductSnapshot{}}
	p.Details.ImportantField = "contains egg"
	got = Resolve(p, 0)
	require.NotNil(t, got)
	assert.True(t, *got)
}

// TestResolve_Unknown verifies absent metadata yields nil, not a default.
func TestResolve_Unknown(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Resolve(nil, 0))
	assert.Nil(t, Resolve(&models.Product{ID: "p1"}, 0))
	assert.Nil(t, Resolve(&models.Product{ID: "p1"}, 5), "out-of-range variant index ignores variants")
}
