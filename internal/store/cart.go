package store

import (
	"context"
	"database/sql"
	"fmt"
)

// userRecipeSet is a (user, recipe) membership table such as favorites or
// the shopping cart.
type userRecipeSet struct {
	db    *sql.DB
	table string
}

// Add inserts the pair. A pair that is already present yields ErrConflict.
func (s userRecipeSet) Add(userID, recipeID int64) error {
	_, err := s.db.Exec(`INSERT INTO `+s.table+` (user_id, recipe_id) VALUES (?, ?)`, userID, recipeID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", s.table, err)
	}
	return nil
}

// Remove reports whether the pair was present.
func (s userRecipeSet) Remove(userID, recipeID int64) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM `+s.table+` WHERE user_id = ? AND recipe_id = ?`, userID, recipeID)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", s.table, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s userRecipeSet) Contains(userID, recipeID int64) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM `+s.table+` WHERE user_id = ? AND recipe_id = ?`, userID, recipeID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check %s: %w", s.table, err)
	}
	return true, nil
}

// Among returns the subset of recipeIDs present for userID.
func (s userRecipeSet) Among(userID int64, recipeIDs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool)
	if userID == 0 || len(recipeIDs) == 0 {
		return out, nil
	}

	args := append([]any{userID}, int64Args(recipeIDs)...)
	rows, err := s.db.Query(
		`SELECT recipe_id FROM `+s.table+` WHERE user_id = ? AND recipe_id IN (`+placeholders(len(recipeIDs))+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table, err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

type FavoriteStore struct {
	userRecipeSet
}

func NewFavoriteStore(db *sql.DB) *FavoriteStore {
	return &FavoriteStore{userRecipeSet{db: db, table: "favorites"}}
}

type CartStore struct {
	userRecipeSet
}

func NewCartStore(db *sql.DB) *CartStore {
	return &CartStore{userRecipeSet{db: db, table: "shopping_cart"}}
}

// ListCartRecipeIDs returns the recipes in the user's cart in the order they
// were added.
func (s *CartStore) ListCartRecipeIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT recipe_id FROM shopping_cart WHERE user_id = ? ORDER BY added_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cart: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
