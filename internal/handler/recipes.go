package handler

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/foodgram/internal/auth"
	"github.com/dukerupert/foodgram/internal/media"
	"github.com/dukerupert/foodgram/internal/model"
	"github.com/dukerupert/foodgram/internal/shopping"
	"github.com/dukerupert/foodgram/internal/store"
	ws "github.com/dukerupert/foodgram/internal/websocket"
)

type RecipeHandler struct {
	recipeStore     *store.RecipeStore
	tagStore        *store.TagStore
	ingredientStore *store.IngredientStore
	favoriteStore   *store.FavoriteStore
	cartStore       *store.CartStore
	media           *media.Store
	aggregator      *shopping.Aggregator
	present         *presenter
	validator       *Validator
	events          ws.Publisher
	pageSize        int
	logger          *slog.Logger
}

func NewRecipeHandler(deps Deps) *RecipeHandler {
	return &RecipeHandler{
		recipeStore:     deps.Recipes,
		tagStore:        deps.Tags,
		ingredientStore: deps.Ingredients,
		favoriteStore:   deps.Favorites,
		cartStore:       deps.Cart,
		media:           deps.Media,
		aggregator:      deps.aggregator(),
		present:         deps.presenter(),
		validator:       deps.Validator,
		events:          deps.Events,
		pageSize:        deps.PageSize,
		logger:          deps.Logger.With("component", "recipes"),
	}
}

type ingredientAmountRequest struct {
	ID     int64 `json:"id" validate:"required,gt=0"`
	Amount int   `json:"amount" validate:"required,min=1,max=32000"`
}

type recipeRequest struct {
	Name        string                    `json:"name" validate:"required,max=200"`
	Text        string                    `json:"text" validate:"required"`
	Image       string                    `json:"image"`
	CookingTime int                       `json:"cooking_time" validate:"required,min=1,max=32000"`
	Tags        []int64                   `json:"tags" validate:"required,min=1,unique,dive,gt=0"`
	Ingredients []ingredientAmountRequest `json:"ingredients" validate:"required,min=1,unique=ID,dive"`
}

func (req recipeRequest) input() model.RecipeInput {
	in := model.RecipeInput{
		Name:        req.Name,
		Text:        req.Text,
		CookingTime: req.CookingTime,
		TagIDs:      req.Tags,
	}
	for _, ing := range req.Ingredients {
		in.Ingredients = append(in.Ingredients, model.IngredientAmount{IngredientID: ing.ID, Amount: ing.Amount})
	}
	return in
}

// parseRecipeRequest decodes and validates a recipe body, writing a 400 on
// failure.
func (h *RecipeHandler) parseRecipeRequest(w http.ResponseWriter, r *http.Request, requireImage bool) (recipeRequest, bool) {
	var req recipeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	if requireImage && req.Image == "" {
		writeError(w, http.StatusBadRequest, "image is a required field")
		return req, false
	}

	n, err := h.tagStore.CountExisting(req.Tags)
	if err != nil {
		h.logger.Error("check tags", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check tags")
		return req, false
	}
	if n != len(req.Tags) {
		writeError(w, http.StatusBadRequest, "tags must reference existing tags")
		return req, false
	}

	ids := make([]int64, len(req.Ingredients))
	for i, ing := range req.Ingredients {
		ids[i] = ing.ID
	}
	n, err = h.ingredientStore.CountExisting(ids)
	if err != nil {
		h.logger.Error("check ingredients", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check ingredients")
		return req, false
	}
	if n != len(ids) {
		writeError(w, http.StatusBadRequest, "ingredients must reference existing ingredients")
		return req, false
	}
	return req, true
}

// saveImage stores a data URI image, writing a 400 or 500 on failure.
func (h *RecipeHandler) saveImage(w http.ResponseWriter, dataURI string) (string, bool) {
	name, err := h.media.SaveDataURI(dataURI)
	if errors.Is(err, media.ErrInvalidImage) {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	if err != nil {
		h.logger.Error("save image", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save image")
		return "", false
	}
	return name, true
}

func (h *RecipeHandler) removeImage(name string) {
	if err := h.media.Remove(name); err != nil {
		h.logger.Warn("remove image", "name", name, "error", err)
	}
}

func (h *RecipeHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	p := parsePagination(r, h.pageSize)
	q := r.URL.Query()

	filter := model.RecipeFilter{
		TagSlugs: q["tags"],
		Name:     q.Get("name"),
	}
	if author, err := strconv.ParseInt(q.Get("author"), 10, 64); err == nil && author > 0 {
		filter.AuthorID = author
	}
	if userID > 0 && q.Get("is_favorited") == "1" {
		filter.FavoritedBy = userID
	}
	if userID > 0 && q.Get("is_in_shopping_cart") == "1" {
		filter.InShoppingCartOf = userID
	}

	count, err := h.recipeStore.Count(filter)
	if err != nil {
		h.logger.Error("count recipes", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list recipes")
		return
	}
	filter.Limit, filter.Offset = p.limit, p.offset()
	recipes, err := h.recipeStore.List(filter)
	if err != nil {
		h.logger.Error("list recipes", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list recipes")
		return
	}

	views, err := h.present.recipes(userID, recipes)
	if err != nil {
		h.logger.Error("present recipes", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list recipes")
		return
	}
	writeJSON(w, http.StatusOK, newPage(r, p, count, views))
}

func (h *RecipeHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookupRecipe(w, r)
	if !ok {
		return
	}
	h.writeRecipe(w, r, http.StatusOK, rec)
}

func (h *RecipeHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	req, ok := h.parseRecipeRequest(w, r, true)
	if !ok {
		return
	}
	image, ok := h.saveImage(w, req.Image)
	if !ok {
		return
	}

	in := req.input()
	in.Image = image
	rec, err := h.recipeStore.Create(userID, in)
	if err != nil {
		h.removeImage(image)
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusBadRequest, "ingredients must be unique")
			return
		}
		h.logger.Error("create recipe", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create recipe")
		return
	}

	h.logger.Info("recipe created", "recipe_id", rec.ID, "author_id", userID)
	h.events.Publish(r.Context(), ws.NewMessage("recipe", "created", rec.ID))
	h.writeRecipe(w, r, http.StatusCreated, rec)
}

func (h *RecipeHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.lookupOwnRecipe(w, r)
	if !ok {
		return
	}
	req, ok := h.parseRecipeRequest(w, r, false)
	if !ok {
		return
	}

	in := req.input()
	if req.Image != "" {
		if in.Image, ok = h.saveImage(w, req.Image); !ok {
			return
		}
	}

	rec, err := h.recipeStore.Update(existing.ID, in)
	if err != nil {
		h.removeImage(in.Image)
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusBadRequest, "ingredients must be unique")
			return
		}
		h.logger.Error("update recipe", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update recipe")
		return
	}
	if rec == nil {
		h.removeImage(in.Image)
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if in.Image != "" && existing.Image != in.Image {
		h.removeImage(existing.Image)
	}

	h.events.Publish(r.Context(), ws.NewMessage("recipe", "updated", rec.ID))
	h.writeRecipe(w, r, http.StatusOK, rec)
}

func (h *RecipeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookupOwnRecipe(w, r)
	if !ok {
		return
	}
	if err := h.recipeStore.Delete(rec.ID); err != nil {
		h.logger.Error("delete recipe", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete recipe")
		return
	}
	h.removeImage(rec.Image)

	h.logger.Info("recipe deleted", "recipe_id", rec.ID)
	h.events.Publish(r.Context(), ws.NewMessage("recipe", "deleted", rec.ID))
	w.WriteHeader(http.StatusNoContent)
}

// recipeSet is a per-user recipe collection such as favorites or the cart.
type recipeSet interface {
	Add(userID, recipeID int64) error
	Remove(userID, recipeID int64) (bool, error)
}

func (h *RecipeHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	h.addTo(w, r, h.favoriteStore, "favorite")
}

func (h *RecipeHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	h.removeFrom(w, r, h.favoriteStore, "favorite")
}

func (h *RecipeHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	h.addTo(w, r, h.cartStore, "shopping_cart")
}

func (h *RecipeHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	h.removeFrom(w, r, h.cartStore, "shopping_cart")
}

func (h *RecipeHandler) addTo(w http.ResponseWriter, r *http.Request, set recipeSet, entity string) {
	userID := auth.UserID(r.Context())
	rec, ok := h.lookupRecipe(w, r)
	if !ok {
		return
	}

	err := set.Add(userID, rec.ID)
	if errors.Is(err, store.ErrConflict) {
		writeError(w, http.StatusBadRequest, "recipe is already in "+entity)
		return
	}
	if err != nil {
		h.logger.Error("add recipe", "entity", entity, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add recipe")
		return
	}

	h.events.Publish(r.Context(), ws.NewMessage(entity, "added", rec.ID).ForUser(userID))
	writeJSON(w, http.StatusCreated, h.present.shortRecipe(*rec))
}

func (h *RecipeHandler) removeFrom(w http.ResponseWriter, r *http.Request, set recipeSet, entity string) {
	userID := auth.UserID(r.Context())
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	exists, err := h.recipeStore.Exists(id)
	if err != nil {
		h.logger.Error("check recipe", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove recipe")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	removed, err := set.Remove(userID, id)
	if err != nil {
		h.logger.Error("remove recipe", "entity", entity, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove recipe")
		return
	}
	if !removed {
		writeError(w, http.StatusBadRequest, "recipe is not in "+entity)
		return
	}

	h.events.Publish(r.Context(), ws.NewMessage(entity, "removed", id).ForUser(userID))
	w.WriteHeader(http.StatusNoContent)
}

// DownloadShoppingList renders the caller's aggregated cart as pdf (the
// default), txt or xlsx, chosen by ?format=.
func (h *RecipeHandler) DownloadShoppingList(w http.ResponseWriter, r *http.Request) {
	format, err := shopping.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.aggregator.BuildShoppingList(r.Context(), auth.UserID(r.Context()))
	switch {
	case errors.Is(err, shopping.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	case errors.Is(err, shopping.ErrAmountOverflow):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, shopping.ErrStorageUnavailable):
		h.logger.Error("build shopping list", "error", err)
		writeError(w, http.StatusServiceUnavailable, "shopping list is temporarily unavailable")
		return
	case err != nil:
		h.logger.Error("build shopping list", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build shopping list")
		return
	}

	var buf bytes.Buffer
	if err := shopping.Render(&buf, report, format); err != nil {
		h.logger.Error("render shopping list", "format", format, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to render shopping list")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", shopping.ContentDisposition(report, format))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (h *RecipeHandler) lookupRecipe(w http.ResponseWriter, r *http.Request) (*model.Recipe, bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	rec, err := h.recipeStore.GetByID(id)
	if err != nil {
		h.logger.Error("get recipe", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get recipe")
		return nil, false
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	return rec, true
}

// lookupOwnRecipe is lookupRecipe plus a 403 for anyone but the author.
func (h *RecipeHandler) lookupOwnRecipe(w http.ResponseWriter, r *http.Request) (*model.Recipe, bool) {
	rec, ok := h.lookupRecipe(w, r)
	if !ok {
		return nil, false
	}
	if rec.AuthorID != auth.UserID(r.Context()) {
		writeError(w, http.StatusForbidden, "only the author can change a recipe")
		return nil, false
	}
	return rec, true
}

func (h *RecipeHandler) writeRecipe(w http.ResponseWriter, r *http.Request, status int, rec *model.Recipe) {
	view, err := h.present.recipe(auth.UserID(r.Context()), *rec)
	if err != nil {
		h.logger.Error("present recipe", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get recipe")
		return
	}
	writeJSON(w, status, view)
}
