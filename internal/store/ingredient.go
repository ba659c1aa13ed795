package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/foodgram/internal/model"
)

type IngredientStore struct {
	db *sql.DB
}

func NewIngredientStore(db *sql.DB) *IngredientStore {
	return &IngredientStore{db: db}
}

func scanIngredient(s scanner) (*model.Ingredient, error) {
	var i model.Ingredient
	if err := s.Scan(&i.ID, &i.Name, &i.MeasurementUnit); err != nil {
		return nil, err
	}
	return &i, nil
}

const ingredientCols = `id, name, measurement_unit`

// Search lists ingredients whose name starts with prefix, case-insensitively.
// An empty prefix lists the whole catalog.
func (s *IngredientStore) Search(prefix string) ([]model.Ingredient, error) {
	rows, err := s.db.Query(
		`SELECT `+ingredientCols+` FROM ingredients WHERE unicode_lower(name) LIKE ? ESCAPE '\' ORDER BY name ASC, id ASC`,
		escapeLike(strings.ToLower(prefix))+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("search ingredients: %w", err)
	}
	defer rows.Close()

	var out []model.Ingredient
	for rows.Next() {
		i, err := scanIngredient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ingredient: %w", err)
		}
		out = append(out, *i)
	}
	return out, rows.Err()
}

func (s *IngredientStore) GetByID(id int64) (*model.Ingredient, error) {
	row := s.db.QueryRow(`SELECT `+ingredientCols+` FROM ingredients WHERE id = ?`, id)
	i, err := scanIngredient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ingredient: %w", err)
	}
	return i, nil
}

func (s *IngredientStore) Create(name, unit string) (*model.Ingredient, error) {
	result, err := s.db.Exec(`INSERT INTO ingredients (name, measurement_unit) VALUES (?, ?)`, name, unit)
	if isUniqueViolation(err) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("insert ingredient: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

// BulkUpsert inserts every ingredient in one transaction, skipping pairs that
// already exist. It returns the number of rows inserted.
func (s *IngredientStore) BulkUpsert(items []model.Ingredient) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO ingredients (name, measurement_unit) VALUES (?, ?) ON CONFLICT (name, measurement_unit) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, it := range items {
		result, err := stmt.Exec(it.Name, it.MeasurementUnit)
		if err != nil {
			return 0, fmt.Errorf("insert ingredient %q: %w", it.Name, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// CountExisting reports how many of the given ids exist.
func (s *IngredientStore) CountExisting(ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM ingredients WHERE id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count ingredients: %w", err)
	}
	return count, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
