package models

// EggHints carries the loosely-shaped dietary metadata that product feeds
// attach under several different field names. Values may be booleans,
// numeric flags or free-text labels; eggflag.Resolve interprets them.
type EggHints struct {
	ImportantField any            `json:"importantField,omitempty"`
	EggType        any            `json:"eggType,omitempty"`
	EggLabel       any            `json:"eggLabel,omitempty"`
	Egg            any            `json:"egg,omitempty"`
	IsEgg          any            `json:"isEgg,omitempty"`
	ExtraFields    map[string]any `json:"extraFields,omitempty"`
}

type Variant struct {
	ID     string   `json:"id,omitempty"`
	Name   string   `json:"name"`
	Label  string   `json:"label,omitempty"`
	Price  *float64 `json:"price,omitempty"`
	HasEgg *bool    `json:"hasEgg,omitempty"`
	EggHints
}

type Product struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Price                float64          `json:"price"`
	Image                string           `json:"image,omitempty"`
	Stock                *int             `json:"stock,omitempty"`
	HasEgg               *bool            `json:"hasEgg,omitempty"`
	Variants             []Variant        `json:"variants,omitempty"`
	SelectedVariantIndex *int             `json:"selectedVariantIndex,omitempty"`
	Details              *ProductSnapshot `json:"productDetails,omitempty"`
	EggHints
}

// ProductSnapshot is the denormalized product copied into a cart item at
// add time. It is never mutated in place; updates build a new snapshot.
type ProductSnapshot struct {
	ProductID            string    `json:"productId"`
	Name                 string    `json:"name,omitempty"`
	Image                string    `json:"image,omitempty"`
	Stock                *int      `json:"stock,omitempty"`
	Variants             []Variant `json:"variants,omitempty"`
	SelectedVariantIndex *int      `json:"selectedVariantIndex,omitempty"`
	SelectedVariant      *Variant  `json:"selectedVariant,omitempty"`
	VariantLabel         string    `json:"variantLabel,omitempty"`
	VariantIndex         *int      `json:"variantIndex,omitempty"`
	HasEgg               *bool     `json:"hasEgg,omitempty"`
	EggHints
}
