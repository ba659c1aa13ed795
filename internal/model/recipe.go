package model

import "time"

type Tag struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Slug  string `json:"slug"`
}

type Ingredient struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	MeasurementUnit string `json:"measurement_unit"`
}

// RecipeIngredient is an ingredient line of a recipe, joined with the
// ingredient's catalog fields.
type RecipeIngredient struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	MeasurementUnit string `json:"measurement_unit"`
	Amount          int    `json:"amount"`
}

type Recipe struct {
	ID          int64              `json:"id"`
	AuthorID    int64              `json:"-"`
	Name        string             `json:"name"`
	Text        string             `json:"text"`
	Image       string             `json:"image"`
	CookingTime int                `json:"cooking_time"`
	PubDate     time.Time          `json:"pub_date"`
	Tags        []Tag              `json:"tags"`
	Ingredients []RecipeIngredient `json:"ingredients"`
}

// IngredientAmount is the write-side form of an ingredient line.
type IngredientAmount struct {
	IngredientID int64
	Amount       int
}

// RecipeInput carries the fields needed to create or replace a recipe.
type RecipeInput struct {
	Name        string
	Text        string
	Image       string
	CookingTime int
	TagIDs      []int64
	Ingredients []IngredientAmount
}

// RecipeFilter narrows a recipe listing. Zero values disable a filter.
type RecipeFilter struct {
	AuthorID         int64
	TagSlugs         []string
	Name             string
	FavoritedBy      int64
	InShoppingCartOf int64
	Limit            int
	Offset           int
}

// IngredientLine is one recipe-ingredient row reduced to the fields a
// shopping list needs.
type IngredientLine struct {
	RecipeID int64
	Name     string
	Unit     string
	Amount   int64
}
