package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/foodgram/internal/config"
	"github.com/dukerupert/foodgram/internal/database"
	"github.com/dukerupert/foodgram/internal/middleware"
	"github.com/dukerupert/foodgram/internal/store"
	ws "github.com/dukerupert/foodgram/internal/websocket"
)

const pngDataURI = "data:image/png;base64,iVBORw0KGgo="

type testEnv struct {
	t       *testing.T
	db      *sql.DB
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.Media.Dir = t.TempDir()
	cfg.RateLimit.RPS = 1000
	cfg.RateLimit.Burst = 1000

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := ws.NewHub(logger)
	srv := New(db, cfg, hub, hub, logger)
	return &testEnv{t: t, db: db, handler: srv.Router()}
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// signUp registers a user and returns an auth token for them.
func (e *testEnv) signUp(username string) string {
	e.t.Helper()
	email := username + "@example.com"
	rec := e.do("POST", "/api/users/", "", map[string]string{
		"email":      email,
		"username":   username,
		"first_name": "Test",
		"last_name":  "User",
		"password":   "correct-horse",
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do("POST", "/api/auth/token/login/", "", map[string]string{
		"email":    email,
		"password": "correct-horse",
	})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		AuthToken string `json:"auth_token"`
	}
	require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(e.t, out.AuthToken)
	return out.AuthToken
}

func (e *testEnv) ingredient(name, unit string) int64 {
	e.t.Helper()
	ing, err := store.NewIngredientStore(e.db).Create(name, unit)
	require.NoError(e.t, err)
	return ing.ID
}

func (e *testEnv) createRecipe(token, name string, ingredients ...map[string]int64) int64 {
	e.t.Helper()
	rec := e.do("POST", "/api/recipes/", token, map[string]any{
		"name":         name,
		"text":         "Mix and bake.",
		"image":        pngDataURI,
		"cooking_time": 30,
		"tags":         []int64{1},
		"ingredients":  ingredients,
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())

	var out struct {
		ID int64 `json:"id"`
	}
	require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.ID
}

func line(id, amount int64) map[string]int64 {
	return map[string]int64{"id": id, "amount": amount}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do("GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do("GET", "/health", "", nil)

	rec := env.do("GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "foodgram_http_requests_total")
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp("alice")

	rec := env.do("GET", "/api/users/me/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)

	rec = env.do("GET", "/api/users/me/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do("POST", "/api/users/", "", map[string]string{
		"email": "alice@example.com", "username": "alice", "first_name": "A", "last_name": "B", "password": "correct-horse",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("POST", "/api/auth/token/login/", "", map[string]string{"email": "alice@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("POST", "/api/auth/token/logout/", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do("GET", "/api/users/me/", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do("POST", "/api/users/", "", map[string]string{
		"email": "not-an-email", "username": "bad name!", "first_name": "A", "last_name": "B", "password": "short",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "email")
	assert.Contains(t, body, "username")
	assert.Contains(t, body, "password")
}

func TestDownloadShoppingList(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp("cook")
	flour := env.ingredient("Flour", "g")
	egg := env.ingredient("Egg", "pcs")
	sugar := env.ingredient("Sugar", "g")

	bread := env.createRecipe(token, "Bread", line(flour, 200), line(egg, 2))
	cake := env.createRecipe(token, "Cake", line(flour, 100), line(sugar, 50))

	for _, id := range []int64{bread, cake} {
		rec := env.do("POST", fmt.Sprintf("/api/recipes/%d/shopping_cart/", id), token, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := env.do("GET", "/api/recipes/download_shopping_cart/?format=txt", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="shopping_list.txt"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "Shopping list\n1. Flour 300 g.\n2. Egg 2 pcs.\n3. Sugar 50 g.\n", rec.Body.String())

	rec = env.do("GET", "/api/recipes/download_shopping_cart/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestDownloadShoppingListEmptyCart(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp("cook")

	rec := env.do("GET", "/api/recipes/download_shopping_cart/?format=txt", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "inline", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "Shopping list is empty\n", rec.Body.String())
}

func TestDownloadShoppingListErrors(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp("cook")

	rec := env.do("GET", "/api/recipes/download_shopping_cart/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do("GET", "/api/recipes/download_shopping_cart/?format=docx", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadShoppingListOverflow(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp("cook")
	rice := env.ingredient("Rice", "g")

	for _, name := range []string{"Pilaf", "Risotto"} {
		id := env.createRecipe(token, name, line(rice, 100))
		rec := env.do("POST", fmt.Sprintf("/api/recipes/%d/shopping_cart/", id), token, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	// Amounts this large only reach storage outside the API's validation.
	_, err := env.db.Exec(`UPDATE recipe_ingredients SET amount = ? WHERE ingredient_id = ?`, int64(math.MaxInt64/2+1), rice)
	require.NoError(t, err)

	rec := env.do("GET", "/api/recipes/download_shopping_cart/?format=txt", token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "overflows")
}

func TestDownloadShoppingListStorageUnavailable(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp("cook")

	_, err := env.db.Exec(`DROP TABLE shopping_cart`)
	require.NoError(t, err)

	rec := env.do("GET", "/api/recipes/download_shopping_cart/?format=txt", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "temporarily unavailable")
}

func TestShoppingListIsPerUser(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signUp("alice")
	bob := env.signUp("bob")
	milk := env.ingredient("Milk", "ml")

	id := env.createRecipe(alice, "Latte", line(milk, 250))
	rec := env.do("POST", fmt.Sprintf("/api/recipes/%d/shopping_cart/", id), alice, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do("GET", "/api/recipes/download_shopping_cart/?format=txt", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Shopping list is empty\n", rec.Body.String())
}

func TestRecipeOwnership(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signUp("alice")
	bob := env.signUp("bob")
	salt := env.ingredient("Salt", "g")
	id := env.createRecipe(alice, "Brine", line(salt, 10))
	path := fmt.Sprintf("/api/recipes/%d/", id)

	rec := env.do("DELETE", path, bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do("PATCH", path, alice, map[string]any{
		"name": "Strong brine", "text": "More salt.", "cooking_time": 5,
		"tags": []int64{2}, "ingredients": []map[string]int64{line(salt, 40)},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"name":"Strong brine"`)
	assert.Contains(t, rec.Body.String(), `"amount":40`)

	rec = env.do("DELETE", path, alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do("GET", path, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecipeValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp("cook")
	salt := env.ingredient("Salt", "g")

	tests := []struct {
		name string
		body map[string]any
	}{
		{"no ingredients", map[string]any{"name": "X", "text": "t", "image": pngDataURI, "cooking_time": 1, "tags": []int64{1}, "ingredients": []any{}}},
		{"duplicate ingredient", map[string]any{"name": "X", "text": "t", "image": pngDataURI, "cooking_time": 1, "tags": []int64{1}, "ingredients": []any{line(salt, 1), line(salt, 2)}}},
		{"unknown ingredient", map[string]any{"name": "X", "text": "t", "image": pngDataURI, "cooking_time": 1, "tags": []int64{1}, "ingredients": []any{line(999, 1)}}},
		{"unknown tag", map[string]any{"name": "X", "text": "t", "image": pngDataURI, "cooking_time": 1, "tags": []int64{999}, "ingredients": []any{line(salt, 1)}}},
		{"zero amount", map[string]any{"name": "X", "text": "t", "image": pngDataURI, "cooking_time": 1, "tags": []int64{1}, "ingredients": []any{line(salt, 0)}}},
		{"missing image", map[string]any{"name": "X", "text": "t", "cooking_time": 1, "tags": []int64{1}, "ingredients": []any{line(salt, 1)}}},
		{"bad image", map[string]any{"name": "X", "text": "t", "image": "nope", "cooking_time": 1, "tags": []int64{1}, "ingredients": []any{line(salt, 1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do("POST", "/api/recipes/", token, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestFavoritesAndFilters(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signUp("alice")
	bob := env.signUp("bob")
	oats := env.ingredient("Oats", "g")
	porridge := env.createRecipe(alice, "Porridge", line(oats, 80))
	env.createRecipe(alice, "Granola", line(oats, 120))

	path := fmt.Sprintf("/api/recipes/%d/favorite/", porridge)
	rec := env.do("POST", path, bob, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.do("POST", path, bob, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("GET", "/api/recipes/?is_favorited=1", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Count   int `json:"count"`
		Results []struct {
			Name        string `json:"name"`
			IsFavorited bool   `json:"is_favorited"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Equal(t, 1, page.Count)
	assert.Equal(t, "Porridge", page.Results[0].Name)
	assert.True(t, page.Results[0].IsFavorited)

	// Anonymous callers see every recipe regardless of the flag.
	rec = env.do("GET", "/api/recipes/?is_favorited=1", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 2, page.Count)

	rec = env.do("DELETE", path, bob, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do("DELETE", path, bob, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do("DELETE", "/api/recipes/9999/favorite/", bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubscriptions(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signUp("alice")
	bob := env.signUp("bob")
	rice := env.ingredient("Rice", "g")
	env.createRecipe(alice, "Pilaf", line(rice, 200))
	env.createRecipe(alice, "Risotto", line(rice, 300))

	rec := env.do("GET", "/api/users/me/", alice, nil)
	var me struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	path := fmt.Sprintf("/api/users/%d/subscribe/", me.ID)

	rec = env.do("POST", path, alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "self subscription")

	rec = env.do("POST", path+"?recipes_limit=1", bob, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sub struct {
		IsSubscribed bool `json:"is_subscribed"`
		Recipes      []struct {
			Name string `json:"name"`
		} `json:"recipes"`
		RecipesCount int `json:"recipes_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sub))
	assert.True(t, sub.IsSubscribed)
	assert.Len(t, sub.Recipes, 1)
	assert.Equal(t, 2, sub.RecipesCount)

	rec = env.do("POST", path, bob, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("GET", "/api/users/subscriptions/", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = env.do("DELETE", path, bob, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do("DELETE", path, bob, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCatalogRoutes(t *testing.T) {
	env := newTestEnv(t)
	env.ingredient("Basil", "g")
	env.ingredient("Bay leaf", "pcs")
	env.ingredient("Cumin", "g")

	rec := env.do("GET", "/api/ingredients/?name=ba", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Len(t, items, 2)

	rec = env.do("GET", "/api/tags/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"slug":"breakfast"`)

	rec = env.do("GET", "/api/tags/999/", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebSocketRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do("GET", "/ws", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
