package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/foodgram/internal/model"
)

type RecipeStore struct {
	db *sql.DB
}

func NewRecipeStore(db *sql.DB) *RecipeStore {
	return &RecipeStore{db: db}
}

func scanRecipe(s scanner) (*model.Recipe, error) {
	var r model.Recipe
	err := s.Scan(&r.ID, &r.AuthorID, &r.Name, &r.Text, &r.Image, &r.CookingTime, &r.PubDate)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const recipeCols = `r.id, r.author_id, r.name, r.text, r.image, r.cooking_time, r.pub_date`

// Create inserts the recipe with its tags and ingredient lines in one
// transaction.
func (s *RecipeStore) Create(authorID int64, in model.RecipeInput) (*model.Recipe, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO recipes (author_id, name, text, image, cooking_time) VALUES (?, ?, ?, ?, ?)`,
		authorID, in.Name, in.Text, in.Image, in.CookingTime,
	)
	if err != nil {
		return nil, fmt.Errorf("insert recipe: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := replaceRelations(tx, id, in); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

// Update replaces the recipe's fields, tags and ingredient lines. An empty
// image keeps the stored one.
func (s *RecipeStore) Update(id int64, in model.RecipeInput) (*model.Recipe, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`UPDATE recipes SET name = ?, text = ?, cooking_time = ?, image = CASE WHEN ? = '' THEN image ELSE ? END WHERE id = ?`,
		in.Name, in.Text, in.CookingTime, in.Image, in.Image, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update recipe: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM recipe_tags WHERE recipe_id = ?`, id); err != nil {
		return nil, fmt.Errorf("clear recipe tags: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM recipe_ingredients WHERE recipe_id = ?`, id); err != nil {
		return nil, fmt.Errorf("clear recipe ingredients: %w", err)
	}

	if err := replaceRelations(tx, id, in); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

func replaceRelations(tx *sql.Tx, recipeID int64, in model.RecipeInput) error {
	for _, tagID := range in.TagIDs {
		if _, err := tx.Exec(`INSERT INTO recipe_tags (recipe_id, tag_id) VALUES (?, ?)`, recipeID, tagID); err != nil {
			return fmt.Errorf("insert recipe tag: %w", err)
		}
	}
	for _, ing := range in.Ingredients {
		_, err := tx.Exec(
			`INSERT INTO recipe_ingredients (recipe_id, ingredient_id, amount) VALUES (?, ?, ?)`,
			recipeID, ing.IngredientID, ing.Amount,
		)
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if err != nil {
			return fmt.Errorf("insert recipe ingredient: %w", err)
		}
	}
	return nil
}

func (s *RecipeStore) GetByID(id int64) (*model.Recipe, error) {
	row := s.db.QueryRow(`SELECT `+recipeCols+` FROM recipes r WHERE r.id = ?`, id)
	r, err := scanRecipe(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recipe: %w", err)
	}

	recipes := []model.Recipe{*r}
	if err := s.loadRelations(recipes); err != nil {
		return nil, err
	}
	return &recipes[0], nil
}

// Exists reports whether a recipe with the id is stored.
func (s *RecipeStore) Exists(id int64) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM recipes WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check recipe: %w", err)
	}
	return true, nil
}

func (s *RecipeStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM recipes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete recipe: %w", err)
	}
	return nil
}

func buildRecipeWhere(f model.RecipeFilter) (string, []any) {
	var conds []string
	var args []any

	if f.AuthorID != 0 {
		conds = append(conds, `r.author_id = ?`)
		args = append(args, f.AuthorID)
	}
	if len(f.TagSlugs) > 0 {
		conds = append(conds, `r.id IN (SELECT rt.recipe_id FROM recipe_tags rt JOIN tags t ON t.id = rt.tag_id WHERE t.slug IN (`+placeholders(len(f.TagSlugs))+`))`)
		for _, slug := range f.TagSlugs {
			args = append(args, slug)
		}
	}
	if f.Name != "" {
		conds = append(conds, `unicode_lower(r.name) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(f.Name))+"%")
	}
	if f.FavoritedBy != 0 {
		conds = append(conds, `EXISTS (SELECT 1 FROM favorites f WHERE f.recipe_id = r.id AND f.user_id = ?)`)
		args = append(args, f.FavoritedBy)
	}
	if f.InShoppingCartOf != 0 {
		conds = append(conds, `EXISTS (SELECT 1 FROM shopping_cart c WHERE c.recipe_id = r.id AND c.user_id = ?)`)
		args = append(args, f.InShoppingCartOf)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return ` WHERE ` + strings.Join(conds, ` AND `), args
}

// List returns recipes matching the filter, newest first.
func (s *RecipeStore) List(f model.RecipeFilter) ([]model.Recipe, error) {
	where, args := buildRecipeWhere(f)
	query := `SELECT ` + recipeCols + ` FROM recipes r` + where + ` ORDER BY r.pub_date DESC, r.id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}

	var recipes []model.Recipe
	for rows.Next() {
		r, err := scanRecipe(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan recipe: %w", err)
		}
		recipes = append(recipes, *r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	rows.Close()

	if err := s.loadRelations(recipes); err != nil {
		return nil, err
	}
	return recipes, nil
}

// Count returns how many recipes match the filter, ignoring Limit and Offset.
func (s *RecipeStore) Count(f model.RecipeFilter) (int, error) {
	where, args := buildRecipeWhere(f)
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM recipes r`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count recipes: %w", err)
	}
	return count, nil
}

// loadRelations fills Tags and Ingredients for every recipe in place.
func (s *RecipeStore) loadRelations(recipes []model.Recipe) error {
	if len(recipes) == 0 {
		return nil
	}

	ids := make([]int64, len(recipes))
	index := make(map[int64]int, len(recipes))
	for i := range recipes {
		ids[i] = recipes[i].ID
		index[recipes[i].ID] = i
		recipes[i].Tags = []model.Tag{}
		recipes[i].Ingredients = []model.RecipeIngredient{}
	}

	tagRows, err := s.db.Query(
		`SELECT rt.recipe_id, t.id, t.name, t.color, t.slug FROM recipe_tags rt JOIN tags t ON t.id = rt.tag_id
		 WHERE rt.recipe_id IN (`+placeholders(len(ids))+`) ORDER BY t.id ASC`,
		int64Args(ids)...,
	)
	if err != nil {
		return fmt.Errorf("list recipe tags: %w", err)
	}
	for tagRows.Next() {
		var recipeID int64
		var t model.Tag
		var color, slug sql.NullString
		if err := tagRows.Scan(&recipeID, &t.ID, &t.Name, &color, &slug); err != nil {
			tagRows.Close()
			return fmt.Errorf("scan recipe tag: %w", err)
		}
		t.Color, t.Slug = color.String, slug.String
		i := index[recipeID]
		recipes[i].Tags = append(recipes[i].Tags, t)
	}
	if err := tagRows.Err(); err != nil {
		tagRows.Close()
		return fmt.Errorf("list recipe tags: %w", err)
	}
	tagRows.Close()

	ingRows, err := s.db.Query(
		`SELECT ri.recipe_id, i.id, i.name, i.measurement_unit, ri.amount FROM recipe_ingredients ri JOIN ingredients i ON i.id = ri.ingredient_id
		 WHERE ri.recipe_id IN (`+placeholders(len(ids))+`) ORDER BY ri.id ASC`,
		int64Args(ids)...,
	)
	if err != nil {
		return fmt.Errorf("list recipe ingredients: %w", err)
	}
	defer ingRows.Close()
	for ingRows.Next() {
		var recipeID int64
		var ri model.RecipeIngredient
		if err := ingRows.Scan(&recipeID, &ri.ID, &ri.Name, &ri.MeasurementUnit, &ri.Amount); err != nil {
			return fmt.Errorf("scan recipe ingredient: %w", err)
		}
		i := index[recipeID]
		recipes[i].Ingredients = append(recipes[i].Ingredients, ri)
	}
	return ingRows.Err()
}

// CountByAuthor returns how many recipes each of the given authors has.
func (s *RecipeStore) CountByAuthor(authorIDs []int64) (map[int64]int, error) {
	out := make(map[int64]int)
	if len(authorIDs) == 0 {
		return out, nil
	}

	rows, err := s.db.Query(
		`SELECT author_id, COUNT(*) FROM recipes WHERE author_id IN (`+placeholders(len(authorIDs))+`) GROUP BY author_id`,
		int64Args(authorIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("count recipes by author: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan recipe count: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

// ListIngredientLines returns the ingredient lines of the given recipes.
// Lines are grouped by recipe in the order of recipeIDs, and within a recipe
// follow the order the lines were stored.
func (s *RecipeStore) ListIngredientLines(ctx context.Context, recipeIDs []int64) ([]model.IngredientLine, error) {
	if len(recipeIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ri.recipe_id, i.name, i.measurement_unit, ri.amount
		 FROM recipe_ingredients ri JOIN ingredients i ON i.id = ri.ingredient_id
		 WHERE ri.recipe_id IN (`+placeholders(len(recipeIDs))+`) ORDER BY ri.id ASC`,
		int64Args(recipeIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("list ingredient lines: %w", err)
	}
	defer rows.Close()

	byRecipe := make(map[int64][]model.IngredientLine)
	for rows.Next() {
		var l model.IngredientLine
		if err := rows.Scan(&l.RecipeID, &l.Name, &l.Unit, &l.Amount); err != nil {
			return nil, fmt.Errorf("scan ingredient line: %w", err)
		}
		byRecipe[l.RecipeID] = append(byRecipe[l.RecipeID], l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ingredient lines: %w", err)
	}

	var lines []model.IngredientLine
	for _, id := range recipeIDs {
		lines = append(lines, byRecipe[id]...)
		delete(byRecipe, id)
	}
	return lines, nil
}
