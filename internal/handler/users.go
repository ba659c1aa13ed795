package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/foodgram/internal/auth"
	"github.com/dukerupert/foodgram/internal/middleware"
	"github.com/dukerupert/foodgram/internal/model"
	"github.com/dukerupert/foodgram/internal/store"
	ws "github.com/dukerupert/foodgram/internal/websocket"
)

type UserHandler struct {
	userStore    *store.UserStore
	sessionStore *store.SessionStore
	followStore  *store.FollowStore
	recipeStore  *store.RecipeStore
	present      *presenter
	validator    *Validator
	events       ws.Publisher
	pageSize     int
	sessionTTL   time.Duration
	logger       *slog.Logger
}

func NewUserHandler(deps Deps) *UserHandler {
	return &UserHandler{
		userStore:    deps.Users,
		sessionStore: deps.Sessions,
		followStore:  deps.Follows,
		recipeStore:  deps.Recipes,
		present:      deps.presenter(),
		validator:    deps.Validator,
		events:       deps.Events,
		pageSize:     deps.PageSize,
		sessionTTL:   deps.SessionTTL,
		logger:       deps.Logger.With("component", "users"),
	}
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Username  string `json:"username" validate:"required,max=150,username"`
	FirstName string `json:"first_name" validate:"required,max=150"`
	LastName  string `json:"last_name" validate:"required,max=150"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
}

type registeredUser struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.EqualFold(req.Username, "me") {
		writeError(w, http.StatusBadRequest, "username \"me\" is reserved")
		return
	}

	u, err := h.userStore.Create(req.Email, req.Username, req.FirstName, req.LastName, req.Password)
	if errors.Is(err, store.ErrConflict) {
		writeError(w, http.StatusBadRequest, "a user with that email or username already exists")
		return
	}
	if err != nil {
		h.logger.Error("create user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	h.logger.Info("user registered", "user_id", u.ID)
	writeJSON(w, http.StatusCreated, registeredUser{
		ID: u.ID, Email: u.Email, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName,
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	u, err := h.userStore.Authenticate(strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		h.logger.Error("authenticate", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to log in")
		return
	}
	if u == nil {
		writeError(w, http.StatusBadRequest, "unable to log in with provided credentials")
		return
	}

	sess, err := h.sessionStore.Create(u.ID, h.sessionTTL)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to log in")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	writeJSON(w, http.StatusOK, map[string]string{"auth_token": sess.Token})
}

func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if err := h.sessionStore.Delete(ac.SessionID); err != nil {
		h.logger.Error("delete session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: middleware.SessionCookieName, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	p := parsePagination(r, h.pageSize)

	users, err := h.userStore.List(p.limit, p.offset())
	if err != nil {
		h.logger.Error("list users", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	count, err := h.userStore.Count()
	if err != nil {
		h.logger.Error("count users", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	views, err := h.present.userViews(auth.UserID(r.Context()), users)
	if err != nil {
		h.logger.Error("present users", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, newPage(r, p, count, views))
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	h.writeUser(w, r, id)
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	h.writeUser(w, r, auth.UserID(r.Context()))
}

func (h *UserHandler) writeUser(w http.ResponseWriter, r *http.Request, id int64) {
	u, err := h.userStore.GetByID(id)
	if err != nil {
		h.logger.Error("get user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	views, err := h.present.userViews(auth.UserID(r.Context()), []model.User{*u})
	if err != nil {
		h.logger.Error("present user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}
	writeJSON(w, http.StatusOK, views[0])
}

type setPasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

func (h *UserHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	var req setPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ok, err := h.userStore.SetPassword(auth.UserID(r.Context()), req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.logger.Error("set password", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to set password")
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "current_password is incorrect")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	author, ok := h.lookupAuthor(w, r)
	if !ok {
		return
	}
	if author.ID == userID {
		writeError(w, http.StatusBadRequest, "you cannot subscribe to yourself")
		return
	}

	_, err := h.followStore.Subscribe(userID, author.ID)
	if errors.Is(err, store.ErrConflict) {
		writeError(w, http.StatusBadRequest, "already subscribed")
		return
	}
	if err != nil {
		h.logger.Error("subscribe", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}

	views, err := h.subscriptionViews(userID, []model.User{*author}, recipesLimit(r))
	if err != nil {
		h.logger.Error("present subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}

	h.events.Publish(r.Context(), ws.NewMessage("subscription", "added", author.ID).ForUser(userID))
	writeJSON(w, http.StatusCreated, views[0])
}

func (h *UserHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	author, ok := h.lookupAuthor(w, r)
	if !ok {
		return
	}

	removed, err := h.followStore.Unsubscribe(userID, author.ID)
	if err != nil {
		h.logger.Error("unsubscribe", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}
	if !removed {
		writeError(w, http.StatusBadRequest, "not subscribed")
		return
	}

	h.events.Publish(r.Context(), ws.NewMessage("subscription", "removed", author.ID).ForUser(userID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) Subscriptions(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	p := parsePagination(r, h.pageSize)

	authors, err := h.followStore.ListAuthors(userID, p.limit, p.offset())
	if err != nil {
		h.logger.Error("list subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	count, err := h.followStore.CountAuthors(userID)
	if err != nil {
		h.logger.Error("count subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	views, err := h.subscriptionViews(userID, authors, recipesLimit(r))
	if err != nil {
		h.logger.Error("present subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	writeJSON(w, http.StatusOK, newPage(r, p, count, views))
}

func (h *UserHandler) lookupAuthor(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	author, err := h.userStore.GetByID(id)
	if err != nil {
		h.logger.Error("get author", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get author")
		return nil, false
	}
	if author == nil {
		writeError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	return author, true
}

// recipesLimit reads ?recipes_limit=; 0 means no limit.
func recipesLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("recipes_limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (h *UserHandler) subscriptionViews(viewerID int64, authors []model.User, limit int) ([]subscriptionView, error) {
	users, err := h.present.userViews(viewerID, authors)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(authors))
	for i, a := range authors {
		ids[i] = a.ID
	}
	counts, err := h.recipeStore.CountByAuthor(ids)
	if err != nil {
		return nil, err
	}

	out := make([]subscriptionView, len(authors))
	for i, a := range authors {
		recipes, err := h.recipeStore.List(model.RecipeFilter{AuthorID: a.ID, Limit: limit})
		if err != nil {
			return nil, err
		}
		short := make([]shortRecipeView, len(recipes))
		for j, rec := range recipes {
			short[j] = h.present.shortRecipe(rec)
		}
		out[i] = subscriptionView{userView: users[i], Recipes: short, RecipesCount: counts[a.ID]}
	}
	return out, nil
}
