// Package eggflag infers whether a product contains egg from the
// inconsistently-shaped dietary metadata carried by product feeds.
//
// The result is tri-state: true, false, or nil when no source is decisive.
// Callers must treat nil as "unknown", never as a default.
package eggflag

import (
	"strings"

	"cartsync/models"
)

// hintFields is the search order within a single EggHints block.
func hintValues(h models.EggHints) []any {
	vals := []any{h.ImportantField, h.EggType, h.EggLabel, h.Egg, h.IsEgg}
	if h.ExtraFields != nil {
		for _, key := range []string{"importantField", "eggType", "eggLabel", "egg", "isEgg"} {
			if v, ok := h.ExtraFields[key]; ok {
				vals = append(vals, v)
			}
		}
	}
	return vals
}

// Resolve derives the egg flag for a product and a chosen variant index.
// Resolution order, first decisive answer wins:
//
//  1. explicit boolean flag on the selected variant
//  2. hint fields on the selected variant
//  3. explicit flag and hint fields on the product itself
//  4. hint fields on the nested product-details snapshot
func Resolve(p *models.Product, variantIndex int) *bool {
	if p == nil {
		return nil
	}

	if variantIndex >= 0 && variantIndex < len(p.Variants) {
		v := p.Variants[variantIndex]
		if v.HasEgg != nil {
			return v.HasEgg
		}
		if r := scanHints(v.EggHints); r != nil {
			return r
		}
	}

	if p.HasEgg != nil {
		return p.HasEgg
	}
	if r := scanHints(p.EggHints); r != nil {
		return r
	}

	if p.Details != nil {
		if p.Details.HasEgg != nil {
			return p.Details.HasEgg
		}
		if r := scanHints(p.Details.EggHints); r != nil {
			return r
		}
	}
	return nil
}

func scanHints(h models.EggHints) *bool {
	for _, v := range hintValues(h) {
		if r := fromValue(v); r != nil {
			return r
		}
	}
	return nil
}

// fromValue dispatches a single hint value to the mapping function for its
// shape: boolean, numeric flag, or free-text label.
func fromValue(v any) *bool {
	switch t := v.(type) {
	case nil:
		return nil
	case bool:
		return fromBool(t)
	case int:
		return fromNumber(float64(t))
	case int64:
		return fromNumber(float64(t))
	case float64:
		return fromNumber(t)
	case string:
		return fromText(t)
	}
	return nil
}

func fromBool(b bool) *bool {
	return &b
}

// fromNumber treats 1/0 as true/false; any other number is not a flag.
func fromNumber(n float64) *bool {
	switch n {
	case 1:
		return boolPtr(true)
	case 0:
		return boolPtr(false)
	}
	return nil
}

var trueTokens = map[string]bool{"true": true, "yes": true, "y": true, "1": true}

var falseTokens = map[string]bool{"false": true, "no": true, "n": true, "0": true}

// Negative phrases are checked before positive ones: "eggless" contains
// "egg" and must not classify as egg-positive.
var negativePhrases = []string{
	"eggless", "no egg", "egg free", "egg-free", "without egg", "pure veg", "veg only",
}

var positivePhrases = []string{
	"with egg", "contains egg", "has egg", "egg-based",
}

func fromText(s string) *bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	if trueTokens[s] {
		return boolPtr(true)
	}
	if falseTokens[s] {
		return boolPtr(false)
	}
	for _, p := range negativePhrases {
		if strings.Contains(s, p) {
			return boolPtr(false)
		}
	}
	for _, p := range positivePhrases {
		if strings.Contains(s, p) {
			return boolPtr(true)
		}
	}
	if strings.Contains(s, "egg") {
		return boolPtr(true)
	}
	return nil
}

func boolPtr(b bool) *bool {
	return &b
}
