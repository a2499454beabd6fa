package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"cartsync/config"
	"cartsync/models"
)

type CartRepository struct{}

func NewCartRepository() *CartRepository {
	return &CartRepository{}
}

func (r *CartRepository) GetCart(ctx context.Context, userID int) ([]models.CartItem, error) {
	query := `SELECT id, product_id, name, price, COALESCE(image, ''), quantity, product_details, added_at
	          FROM cart_items WHERE user_id = $1 ORDER BY added_at`

	rows, err := config.DB.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		var it models.CartItem
		var details []byte
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Name, &it.Price, &it.Image,
			&it.Quantity, &details, &it.AddedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			var snap models.ProductSnapshot
			if err := json.Unmarshal(details, &snap); err == nil {
				it.ProductDetails = &snap
			}
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpsertItem adds the quantity onto an existing row for the same product,
// keeping the one-row-per-product invariant, or inserts a new row.
func (r *CartRepository) UpsertItem(ctx context.Context, userID int, item models.CartItem) error {
	details, err := json.Marshal(item.ProductDetails)
	if err != nil {
		return err
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now()
	}

	query := `
		INSERT INTO cart_items (id, user_id, product_id, name, price, image, quantity, product_details, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, product_id) DO UPDATE SET
			quantity = cart_items.quantity + EXCLUDED.quantity,
			product_details = COALESCE(cart_items.product_details, EXCLUDED.product_details)
	`
	_, err = config.DB.Exec(ctx, query,
		item.ID, userID, item.ProductID, item.Name, item.Price, item.Image,
		item.Quantity, details, item.AddedAt,
	)
	return err
}

func (r *CartRepository) SetQuantity(ctx context.Context, userID int, productID string, quantity int) (bool, error) {
	if quantity == 0 {
		return true, r.RemoveItem(ctx, userID, productID)
	}
	tag, err := config.DB.Exec(ctx,
		`UPDATE cart_items SET quantity = $1 WHERE user_id = $2 AND product_id = $3`,
		quantity, userID, productID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *CartRepository) RemoveItem(ctx context.Context, userID int, productID string) error {
	_, err := config.DB.Exec(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID)
	return err
}

func (r *CartRepository) Clear(ctx context.Context, userID int) error {
	_, err := config.DB.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return err
}

func (r *CartRepository) Count(ctx context.Context, userID int) (int, error) {
	var count int
	err := config.DB.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM cart_items WHERE user_id = $1`, userID).Scan(&count)
	return count, err
}
