package models

type AddCartItemRequest struct {
	ProductID      string           `json:"productId" binding:"required"`
	Quantity       int              `json:"quantity" binding:"required,min=1"`
	VariantIndex   *int             `json:"variantIndex,omitempty"`
	Name           string           `json:"name,omitempty"`
	Price          float64          `json:"price,omitempty"`
	Image          string           `json:"image,omitempty"`
	ProductDetails *ProductSnapshot `json:"productDetails,omitempty"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"min=0"`
}

type MergeCartRequest struct {
	Items []CartItem `json:"items" binding:"required"`
}

type CartCountResponse struct {
	Count int `json:"count"`
}
