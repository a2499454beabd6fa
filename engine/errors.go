package engine

import "errors"

// Validation failures are raised before any persistence or network work.
var (
	ErrMissingProductID = errors.New("product is missing an identifier")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
)
