// Package shopping builds a user's consolidated shopping list from the
// recipes in their cart.
package shopping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/foodgram/internal/model"
)

// Errors returned by BuildShoppingList. Storage failures wrap
// ErrStorageUnavailable around the underlying cause.
var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrAmountOverflow     = errors.New("ingredient total overflows")
)

// CartReader lists the recipes a user has put in their shopping cart.
type CartReader interface {
	ListCartRecipeIDs(ctx context.Context, userID int64) ([]int64, error)
}

// IngredientLineReader lists the ingredient lines of a set of recipes.
type IngredientLineReader interface {
	ListIngredientLines(ctx context.Context, recipeIDs []int64) ([]model.IngredientLine, error)
}

// Aggregator builds shopping lists from cart and recipe storage. It holds no
// state of its own and is safe for concurrent use.
type Aggregator struct {
	carts  CartReader
	lines  IngredientLineReader
	logger *slog.Logger
}

// NewAggregator returns an Aggregator reading carts from carts and recipe
// ingredient lines from lines.
func NewAggregator(carts CartReader, lines IngredientLineReader, logger *slog.Logger) *Aggregator {
	return &Aggregator{carts: carts, lines: lines, logger: logger}
}

type groupKey struct {
	name string
	unit string
}

// BuildShoppingList sums ingredient amounts across every recipe in the
// user's cart. Lines are grouped by exact (name, unit) and entries keep the
// order in which each group first appears.
func (a *Aggregator) BuildShoppingList(ctx context.Context, userID int64) (*Report, error) {
	if userID <= 0 {
		return nil, ErrNotAuthenticated
	}
	start := time.Now()

	recipeIDs, err := a.carts.ListCartRecipeIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list cart: %w", ErrStorageUnavailable, err)
	}
	if len(recipeIDs) == 0 {
		buildDuration.Observe(time.Since(start).Seconds())
		return &Report{}, nil
	}

	lines, err := a.lines.ListIngredientLines(ctx, recipeIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: list ingredient lines: %w", ErrStorageUnavailable, err)
	}

	report, err := aggregate(lines)
	if err != nil {
		return nil, err
	}

	buildDuration.Observe(time.Since(start).Seconds())
	a.logger.Debug("shopping list built",
		"user_id", userID,
		"recipes", len(recipeIDs),
		"lines", len(lines),
		"entries", len(report.Entries),
	)
	return report, nil
}

func aggregate(lines []model.IngredientLine) (*Report, error) {
	positions := make(map[groupKey]int)
	report := &Report{}

	for _, l := range lines {
		key := groupKey{name: l.Name, unit: l.Unit}
		pos, ok := positions[key]
		if !ok {
			positions[key] = len(report.Entries)
			report.Entries = append(report.Entries, Entry{
				Index:  len(report.Entries) + 1,
				Name:   l.Name,
				Unit:   l.Unit,
				Amount: l.Amount,
			})
			continue
		}

		sum, ok := addAmounts(report.Entries[pos].Amount, l.Amount)
		if !ok {
			return nil, fmt.Errorf("%w: %s (%s)", ErrAmountOverflow, l.Name, l.Unit)
		}
		report.Entries[pos].Amount = sum
	}
	return report, nil
}

func addAmounts(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}
