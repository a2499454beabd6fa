package controllers

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"cartsync/models"
	"cartsync/repositories"
)

type CartController struct {
	repo *repositories.CartRepository
}

func NewCartController() *CartController {
	return &CartController{repo: repositories.NewCartRepository()}
}

func userID(c *gin.Context) int {
	id, _ := c.Get("user_id")
	uid, _ := id.(int)
	return uid
}

func payloadFor(items []models.CartItem) models.CartPayload {
	total, count := models.Totals(items)
	return models.CartPayload{Items: items, Total: total, Count: count}
}

// etagFor is a strong validator over the serialized payload.
func etagFor(payload models.CartPayload) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha1.Sum(raw)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// GetCart returns the cart, honoring If-None-Match with a 304.
func (ctrl *CartController) GetCart(c *gin.Context) {
	items, err := ctrl.repo.GetCart(c.Request.Context(), userID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false, Message: "Failed to load cart", Error: err.Error(),
		})
		return
	}

	payload := payloadFor(items)
	etag := etagFor(payload)
	if etag != "" {
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)
	}
	c.JSON(http.StatusOK, models.Response{Success: true, Data: payload})
}

// AddItem validates and upserts one item, keeping exactly one row per
// product.
func (ctrl *CartController) AddItem(c *gin.Context) {
	var req models.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false, Message: "Product id and a positive quantity are required", Error: err.Error(),
		})
		return
	}

	if req.ProductDetails != nil && req.ProductDetails.Stock != nil && req.Quantity > *req.ProductDetails.Stock {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Success: false, Message: "Insufficient stock available",
		})
		return
	}

	uid := userID(c)
	item := models.CartItem{
		ProductID:      req.ProductID,
		Name:           req.Name,
		Price:          req.Price,
		Image:          req.Image,
		Quantity:       req.Quantity,
		ProductDetails: req.ProductDetails,
	}
	if err := ctrl.repo.UpsertItem(c.Request.Context(), uid, item); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false, Message: "Failed to add item to cart", Error: err.Error(),
		})
		return
	}
	ctrl.respondWithCart(c, "Item added to cart")
}

// UpdateItem sets the quantity for a product; zero removes it.
func (ctrl *CartController) UpdateItem(c *gin.Context) {
	var req models.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity < 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false, Message: "Quantity must be zero or greater",
		})
		return
	}

	found, err := ctrl.repo.SetQuantity(c.Request.Context(), userID(c), c.Param("productId"), req.Quantity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false, Message: "Failed to update item quantity", Error: err.Error(),
		})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false, Message: "Item not found in cart",
		})
		return
	}
	ctrl.respondWithCart(c, "Quantity updated")
}

func (ctrl *CartController) RemoveItem(c *gin.Context) {
	if err := ctrl.repo.RemoveItem(c.Request.Context(), userID(c), c.Param("productId")); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false, Message: "Failed to remove item from cart", Error: err.Error(),
		})
		return
	}
	ctrl.respondWithCart(c, "Item removed from cart")
}

func (ctrl *CartController) ClearCart(c *gin.Context) {
	reason := c.Query("reason")
	if err := ctrl.repo.Clear(c.Request.Context(), userID(c)); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false, Message: "Failed to clear cart", Error: err.Error(),
		})
		return
	}
	msg := "Cart cleared"
	if reason == "checkout" {
		msg = "Cart cleared after checkout"
	}
	c.JSON(http.StatusOK, models.Response{Success: true, Message: msg, Data: models.CartPayload{Items: []models.CartItem{}}})
}

func (ctrl *CartController) Count(c *gin.Context) {
	count, err := ctrl.repo.Count(c.Request.Context(), userID(c))
	if err != nil {
		// The badge is advisory; report zero rather than failing.
		count = 0
	}
	c.JSON(http.StatusOK, models.Response{Success: true, Data: models.CartCountResponse{Count: count}})
}

// MergeCart folds a guest cart into the server cart, incrementing
// quantities for products already present.
func (ctrl *CartController) MergeCart(c *gin.Context) {
	var req models.MergeCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false, Message: "Items are required", Error: err.Error(),
		})
		return
	}

	uid := userID(c)
	for _, item := range req.Items {
		if item.ProductID == "" || item.Quantity < 1 {
			continue
		}
		if err := ctrl.repo.UpsertItem(c.Request.Context(), uid, item); err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Success: false, Message: "Failed to merge guest cart", Error: err.Error(),
			})
			return
		}
	}
	ctrl.respondWithCart(c, "Cart merged")
}

// SyncCart is the simpler fallback: it sets absolute quantities instead of
// incrementing, inserting rows that do not exist yet.
func (ctrl *CartController) SyncCart(c *gin.Context) {
	var req models.MergeCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false, Message: "Items are required", Error: err.Error(),
		})
		return
	}

	uid := userID(c)
	for _, item := range req.Items {
		if item.ProductID == "" || item.Quantity < 1 {
			continue
		}
		found, err := ctrl.repo.SetQuantity(c.Request.Context(), uid, item.ProductID, item.Quantity)
		if err == nil && !found {
			err = ctrl.repo.UpsertItem(c.Request.Context(), uid, item)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Success: false, Message: "Failed to sync guest cart", Error: err.Error(),
			})
			return
		}
	}
	ctrl.respondWithCart(c, "Cart synced")
}

func (ctrl *CartController) respondWithCart(c *gin.Context, message string) {
	items, err := ctrl.repo.GetCart(c.Request.Context(), userID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false, Message: "Failed to load cart", Error: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, models.Response{Success: true, Message: message, Data: payloadFor(items)})
}
