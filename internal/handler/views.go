package handler

import (
	"github.com/dukerupert/foodgram/internal/media"
	"github.com/dukerupert/foodgram/internal/model"
	"github.com/dukerupert/foodgram/internal/store"
)

type userView struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	IsSubscribed bool   `json:"is_subscribed"`
}

func newUserView(u model.User, subscribed bool) userView {
	return userView{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		IsSubscribed: subscribed,
	}
}

type shortRecipeView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Image       string `json:"image"`
	CookingTime int    `json:"cooking_time"`
}

type recipeView struct {
	ID               int64                    `json:"id"`
	Tags             []model.Tag              `json:"tags"`
	Author           userView                 `json:"author"`
	Ingredients      []model.RecipeIngredient `json:"ingredients"`
	IsFavorited      bool                     `json:"is_favorited"`
	IsInShoppingCart bool                     `json:"is_in_shopping_cart"`
	Name             string                   `json:"name"`
	Image            string                   `json:"image"`
	Text             string                   `json:"text"`
	CookingTime      int                      `json:"cooking_time"`
}

type subscriptionView struct {
	userView
	Recipes      []shortRecipeView `json:"recipes"`
	RecipesCount int               `json:"recipes_count"`
}

// presenter turns stored rows into API views with the viewer's flags
// resolved in batches.
type presenter struct {
	users     *store.UserStore
	follows   *store.FollowStore
	favorites *store.FavoriteStore
	cart      *store.CartStore
	media     *media.Store
}

func (p *presenter) shortRecipe(r model.Recipe) shortRecipeView {
	return shortRecipeView{ID: r.ID, Name: r.Name, Image: p.media.URL(r.Image), CookingTime: r.CookingTime}
}

func (p *presenter) userViews(viewerID int64, users []model.User) ([]userView, error) {
	ids := make([]int64, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	subscribed, err := p.follows.SubscribedAmong(viewerID, ids)
	if err != nil {
		return nil, err
	}
	out := make([]userView, len(users))
	for i, u := range users {
		out[i] = newUserView(u, subscribed[u.ID])
	}
	return out, nil
}

func (p *presenter) recipes(viewerID int64, recipes []model.Recipe) ([]recipeView, error) {
	recipeIDs := make([]int64, len(recipes))
	var authorIDs []int64
	seen := make(map[int64]bool)
	for i, r := range recipes {
		recipeIDs[i] = r.ID
		if !seen[r.AuthorID] {
			seen[r.AuthorID] = true
			authorIDs = append(authorIDs, r.AuthorID)
		}
	}

	authors, err := p.users.ListByIDs(authorIDs)
	if err != nil {
		return nil, err
	}
	subscribed, err := p.follows.SubscribedAmong(viewerID, authorIDs)
	if err != nil {
		return nil, err
	}
	favorited, err := p.favorites.Among(viewerID, recipeIDs)
	if err != nil {
		return nil, err
	}
	inCart, err := p.cart.Among(viewerID, recipeIDs)
	if err != nil {
		return nil, err
	}

	out := make([]recipeView, len(recipes))
	for i, r := range recipes {
		out[i] = recipeView{
			ID:               r.ID,
			Tags:             r.Tags,
			Author:           newUserView(authors[r.AuthorID], subscribed[r.AuthorID]),
			Ingredients:      r.Ingredients,
			IsFavorited:      favorited[r.ID],
			IsInShoppingCart: inCart[r.ID],
			Name:             r.Name,
			Image:            p.media.URL(r.Image),
			Text:             r.Text,
			CookingTime:      r.CookingTime,
		}
	}
	return out, nil
}

func (p *presenter) recipe(viewerID int64, r model.Recipe) (recipeView, error) {
	views, err := p.recipes(viewerID, []model.Recipe{r})
	if err != nil {
		return recipeView{}, err
	}
	return views[0], nil
}
