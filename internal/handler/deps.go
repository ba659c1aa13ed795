package handler

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/dukerupert/foodgram/internal/media"
	"github.com/dukerupert/foodgram/internal/shopping"
	"github.com/dukerupert/foodgram/internal/store"
	ws "github.com/dukerupert/foodgram/internal/websocket"
)

// Deps bundles what the API handlers share.
type Deps struct {
	Users       *store.UserStore
	Sessions    *store.SessionStore
	Follows     *store.FollowStore
	Recipes     *store.RecipeStore
	Tags        *store.TagStore
	Ingredients *store.IngredientStore
	Favorites   *store.FavoriteStore
	Cart        *store.CartStore
	Media       *media.Store
	Validator   *Validator
	Events      ws.Publisher
	PageSize    int
	SessionTTL  time.Duration
	Logger      *slog.Logger
}

// NewDeps wires every store over db.
func NewDeps(db *sql.DB, mediaStore *media.Store, events ws.Publisher, logger *slog.Logger) Deps {
	return Deps{
		Users:       store.NewUserStore(db),
		Sessions:    store.NewSessionStore(db),
		Follows:     store.NewFollowStore(db),
		Recipes:     store.NewRecipeStore(db),
		Tags:        store.NewTagStore(db),
		Ingredients: store.NewIngredientStore(db),
		Favorites:   store.NewFavoriteStore(db),
		Cart:        store.NewCartStore(db),
		Media:       mediaStore,
		Validator:   NewValidator(),
		Events:      events,
		PageSize:    6,
		SessionTTL:  30 * 24 * time.Hour,
		Logger:      logger,
	}
}

func (d Deps) presenter() *presenter {
	return &presenter{users: d.Users, follows: d.Follows, favorites: d.Favorites, cart: d.Cart, media: d.Media}
}

func (d Deps) aggregator() *shopping.Aggregator {
	return shopping.NewAggregator(d.Cart, d.Recipes, d.Logger.With("component", "shopping"))
}
