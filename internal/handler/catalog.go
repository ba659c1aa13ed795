package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/foodgram/internal/model"
	"github.com/dukerupert/foodgram/internal/store"
)

// CatalogHandler serves the read-only tag and ingredient dictionaries.
type CatalogHandler struct {
	tagStore        *store.TagStore
	ingredientStore *store.IngredientStore
	logger          *slog.Logger
}

func NewCatalogHandler(deps Deps) *CatalogHandler {
	return &CatalogHandler{
		tagStore:        deps.Tags,
		ingredientStore: deps.Ingredients,
		logger:          deps.Logger.With("component", "catalog"),
	}
}

func (h *CatalogHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.tagStore.List()
	if err != nil {
		h.logger.Error("list tags", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tags")
		return
	}
	if tags == nil {
		tags = []model.Tag{}
	}
	writeJSON(w, http.StatusOK, tags)
}

func (h *CatalogHandler) GetTag(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	tag, err := h.tagStore.GetByID(id)
	if err != nil {
		h.logger.Error("get tag", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get tag")
		return
	}
	if tag == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

// ListIngredients filters by ?name= prefix.
func (h *CatalogHandler) ListIngredients(w http.ResponseWriter, r *http.Request) {
	items, err := h.ingredientStore.Search(r.URL.Query().Get("name"))
	if err != nil {
		h.logger.Error("search ingredients", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list ingredients")
		return
	}
	if items == nil {
		items = []model.Ingredient{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CatalogHandler) GetIngredient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	item, err := h.ingredientStore.GetByID(id)
	if err != nil {
		h.logger.Error("get ingredient", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get ingredient")
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}
