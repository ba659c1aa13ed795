package shopping

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/foodgram/internal/model"
)

// fakeStore keeps carts as ordered recipe ids and recipes as ordered lines.
type fakeStore struct {
	carts    map[int64][]int64
	recipes  map[int64][]model.IngredientLine
	cartErr  error
	linesErr error
	calls    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		carts:   make(map[int64][]int64),
		recipes: make(map[int64][]model.IngredientLine),
	}
}

func (s *fakeStore) addRecipe(id int64, lines ...model.IngredientLine) {
	for i := range lines {
		lines[i].RecipeID = id
	}
	s.recipes[id] = lines
}

func (s *fakeStore) ListCartRecipeIDs(ctx context.Context, userID int64) ([]int64, error) {
	s.calls++
	if s.cartErr != nil {
		return nil, s.cartErr
	}
	return append([]int64(nil), s.carts[userID]...), nil
}

func (s *fakeStore) ListIngredientLines(ctx context.Context, recipeIDs []int64) ([]model.IngredientLine, error) {
	if s.linesErr != nil {
		return nil, s.linesErr
	}
	var out []model.IngredientLine
	for _, id := range recipeIDs {
		out = append(out, s.recipes[id]...)
	}
	return out, nil
}

func line(name, unit string, amount int64) model.IngredientLine {
	return model.IngredientLine{Name: name, Unit: unit, Amount: amount}
}

func newTestAggregator(s *fakeStore) *Aggregator {
	return NewAggregator(s, s, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBuildShoppingListSumsAcrossRecipes(t *testing.T) {
	s := newFakeStore()
	s.addRecipe(1, line("Flour", "g", 200), line("Sugar", "g", 50))
	s.addRecipe(2, line("Flour", "g", 250), line("Egg", "pcs", 2))
	s.carts[7] = []int64{1, 2}

	report, err := newTestAggregator(s).BuildShoppingList(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, []Entry{
		{Index: 1, Name: "Flour", Amount: 450, Unit: "g"},
		{Index: 2, Name: "Sugar", Amount: 50, Unit: "g"},
		{Index: 3, Name: "Egg", Amount: 2, Unit: "pcs"},
	}, report.Entries)
	assert.False(t, report.Empty())
}

func TestBuildShoppingListSingleLine(t *testing.T) {
	s := newFakeStore()
	s.addRecipe(1, line("Salt", "pinch", 1))
	s.carts[7] = []int64{1}

	report, err := newTestAggregator(s).BuildShoppingList(context.Background(), 7)
	require.NoError(t, err)

	require.Len(t, report.Entries, 1)
	assert.Equal(t, Entry{Index: 1, Name: "Salt", Amount: 1, Unit: "pinch"}, report.Entries[0])
}

func TestBuildShoppingListEmptyCart(t *testing.T) {
	s := newFakeStore()

	report, err := newTestAggregator(s).BuildShoppingList(context.Background(), 7)
	require.NoError(t, err)

	assert.True(t, report.Empty())
	assert.Equal(t, []string{EmptyMessage}, report.Lines())
}

func buildSamples(t *testing.T) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, buildDuration.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestBuildShoppingListRecordsDuration(t *testing.T) {
	s := newFakeStore()
	s.addRecipe(1, line("Flour", "g", 200))
	s.carts[7] = []int64{1}
	agg := newTestAggregator(s)

	before := buildSamples(t)
	_, err := agg.BuildShoppingList(context.Background(), 7)
	require.NoError(t, err)
	_, err = agg.BuildShoppingList(context.Background(), 8)
	require.NoError(t, err)

	assert.Equal(t, before+2, buildSamples(t), "empty and non-empty builds are both observed")
}

func TestBuildShoppingListRecipesWithoutIngredients(t *testing.T) {
	s := newFakeStore()
	s.addRecipe(1)
	s.carts[7] = []int64{1}

	report, err := newTestAggregator(s).BuildShoppingList(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, report.Empty())
}

func TestBuildShoppingListGroupsByExactNameAndUnit(t *testing.T) {
	s := newFakeStore()
	s.addRecipe(1, line("Milk", "ml", 200), line("milk", "ml", 100))
	s.addRecipe(2, line("Milk", "l", 1), line("Milk", "ml", 300))
	s.carts[7] = []int64{1, 2}

	report, err := newTestAggregator(s).BuildShoppingList(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, []Entry{
		{Index: 1, Name: "Milk", Amount: 500, Unit: "ml"},
		{Index: 2, Name: "milk", Amount: 100, Unit: "ml"},
		{Index: 3, Name: "Milk", Amount: 1, Unit: "l"},
	}, report.Entries)
}

func TestBuildShoppingListIsIdempotent(t *testing.T) {
	s := newFakeStore()
	s.addRecipe(1, line("Flour", "g", 200), line("Sugar", "g", 50))
	s.addRecipe(2, line("Flour", "g", 250), line("Egg", "pcs", 2))
	s.carts[7] = []int64{2, 1}
	agg := newTestAggregator(s)

	first, err := agg.BuildShoppingList(context.Background(), 7)
	require.NoError(t, err)
	second, err := agg.BuildShoppingList(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, s.calls)
}

func TestBuildShoppingListIsScopedToUser(t *testing.T) {
	s := newFakeStore()
	s.addRecipe(1, line("Flour", "g", 200))
	s.addRecipe(2, line("Egg", "pcs", 2))
	s.carts[7] = []int64{1}
	s.carts[8] = []int64{2}

	report, err := newTestAggregator(s).BuildShoppingList(context.Background(), 8)
	require.NoError(t, err)

	require.Len(t, report.Entries, 1)
	assert.Equal(t, "Egg", report.Entries[0].Name)
}

func TestBuildShoppingListAfterRemoval(t *testing.T) {
	s := newFakeStore()
	s.addRecipe(1, line("Flour", "g", 200), line("Sugar", "g", 50))
	s.addRecipe(2, line("Flour", "g", 250), line("Egg", "pcs", 2))
	s.carts[7] = []int64{1, 2}
	agg := newTestAggregator(s)

	s.carts[7] = []int64{2}
	report, err := agg.BuildShoppingList(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, []Entry{
		{Index: 1, Name: "Flour", Amount: 250, Unit: "g"},
		{Index: 2, Name: "Egg", Amount: 2, Unit: "pcs"},
	}, report.Entries)
}

func TestBuildShoppingListRejectsAnonymous(t *testing.T) {
	s := newFakeStore()

	_, err := newTestAggregator(s).BuildShoppingList(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, 0, s.calls)
}

func TestBuildShoppingListStorageFailure(t *testing.T) {
	cause := errors.New("database is locked")

	tests := []struct {
		name string
		set  func(*fakeStore)
	}{
		{"cart read fails", func(s *fakeStore) { s.cartErr = cause }},
		{"line read fails", func(s *fakeStore) { s.linesErr = cause }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeStore()
			s.addRecipe(1, line("Flour", "g", 200))
			s.carts[7] = []int64{1}
			tt.set(s)

			report, err := newTestAggregator(s).BuildShoppingList(context.Background(), 7)
			assert.Nil(t, report)
			assert.ErrorIs(t, err, ErrStorageUnavailable)
			assert.ErrorIs(t, err, cause)
		})
	}
}

func TestBuildShoppingListOverflow(t *testing.T) {
	s := newFakeStore()
	s.addRecipe(1, line("Rice", "g", math.MaxInt64))
	s.addRecipe(2, line("Rice", "g", 1))
	s.carts[7] = []int64{1, 2}

	report, err := newTestAggregator(s).BuildShoppingList(context.Background(), 7)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrAmountOverflow)
}

func TestBuildShoppingListLargeTotals(t *testing.T) {
	s := newFakeStore()
	s.addRecipe(1, line("Rice", "g", math.MaxInt32))
	s.addRecipe(2, line("Rice", "g", math.MaxInt32))
	s.carts[7] = []int64{1, 2}

	report, err := newTestAggregator(s).BuildShoppingList(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2*math.MaxInt32), report.Entries[0].Amount)
}
