package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/opencrafts-io/parley/internal/middleware"
	"github.com/opencrafts-io/parley/internal/profile"
)

//go:generate mockgen -destination=../mocks/mock_profile_service.go -package=mocks github.com/opencrafts-io/parley/internal/handlers ProfileService

type ProfileService interface {
	Get(ctx context.Context, username string) (*profile.Profile, error)
	ByEmail(ctx context.Context, email string) (*profile.Profile, error)
	Update(ctx context.Context, username string, req profile.UpdateRequest) (*profile.Profile, error)
	Search(ctx context.Context, term string, limit, offset int) ([]profile.Profile, int64, error)
	Batch(ctx context.Context, usernamesCS string) ([]profile.Profile, error)
}

// UserAnonymousRoutes are the profile routes served without a session.
var UserAnonymousRoutes = middleware.Routes{
	"/api/users/search",
	"/api/users/batch",
}

type UserHandler struct {
	Service ProfileService
	Logger  *slog.Logger
}

// SearchResponse is one page of search results.
type SearchResponse struct {
	Results []profile.Profile `json:"results"`
	Total   int64             `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
}

func (uh *UserHandler) RegisterHandlers(router *http.ServeMux) {
	router.HandleFunc("GET /api/users", uh.GetOwnProfile)
	router.HandleFunc("PUT /api/users", uh.UpdateOwnProfile)
	router.Handle("GET /api/users/search",
		middleware.PaginationMiddleware(10, 100)(http.HandlerFunc(uh.Search)),
	)
	router.HandleFunc("GET /api/users/batch", uh.Batch)
	router.HandleFunc("GET /api/users/email/{email}", uh.GetByEmail)
}

// @Summary      Own profile
// @Tags         users
// @Produce      json
// @Success      200  {object}  profile.Profile
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /api/users [get]
func (uh *UserHandler) GetOwnProfile(w http.ResponseWriter, r *http.Request) {
	username, ok := uh.username(w, r)
	if !ok {
		return
	}
	p, err := uh.Service.Get(r.Context(), username)
	if err != nil {
		uh.fail(w, "Failed to load profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// @Summary      Update own profile
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      profile.UpdateRequest  true  "Fields to change"
// @Success      200   {object}  profile.Profile
// @Failure      400   {object}  ErrorResponse
// @Router       /api/users [put]
func (uh *UserHandler) UpdateOwnProfile(w http.ResponseWriter, r *http.Request) {
	username, ok := uh.username(w, r)
	if !ok {
		return
	}
	var req profile.UpdateRequest
	if !decode(w, r, uh.Logger, &req) {
		return
	}
	p, err := uh.Service.Update(r.Context(), username, req)
	if err != nil {
		uh.fail(w, "Failed to update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// @Summary      Search active profiles by username
// @Tags         users
// @Produce      json
// @Param        q       query     string  true   "Search term"
// @Param        limit   query     int     false  "Page size"
// @Param        offset  query     int     false  "Offset"
// @Success      200     {object}  SearchResponse
// @Failure      400     {object}  ErrorResponse
// @Router       /api/users/search [get]
func (uh *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	page := middleware.GetPagination(r.Context())
	results, total, err := uh.Service.Search(r.Context(), r.URL.Query().Get("q"), page.Limit, page.Offset)
	if err != nil {
		uh.fail(w, "Failed to search profiles", err)
		return
	}
	if results == nil {
		results = []profile.Profile{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results, Total: total, Limit: page.Limit, Offset: page.Offset})
}

// @Summary      Look up several profiles
// @Tags         users
// @Produce      json
// @Param        usernames  query    string  true  "Comma separated usernames"
// @Success      200        {array}  profile.Profile
// @Failure      400        {object}  ErrorResponse
// @Router       /api/users/batch [get]
func (uh *UserHandler) Batch(w http.ResponseWriter, r *http.Request) {
	results, err := uh.Service.Batch(r.Context(), r.URL.Query().Get("usernames"))
	if err != nil {
		uh.fail(w, "Failed to load profiles", err)
		return
	}
	if results == nil {
		results = []profile.Profile{}
	}
	writeJSON(w, http.StatusOK, results)
}

// @Summary      Profile by email
// @Tags         users
// @Produce      json
// @Param        email  path      string  true  "Email"
// @Success      200    {object}  profile.Profile
// @Failure      404    {object}  ErrorResponse
// @Router       /api/users/email/{email} [get]
func (uh *UserHandler) GetByEmail(w http.ResponseWriter, r *http.Request) {
	p, err := uh.Service.ByEmail(r.Context(), r.PathValue("email"))
	if err != nil {
		uh.fail(w, "Failed to load profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (uh *UserHandler) username(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || claims.Username == "" {
		writeError(w, http.StatusUnauthorized, "Username claim is missing")
		return "", false
	}
	return claims.Username, true
}

func (uh *UserHandler) fail(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, profile.ErrInvalidInput):
		uh.Logger.Warn(msg, slog.Any("error", err))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, profile.ErrNotFound):
		writeError(w, http.StatusNotFound, "Profile not found")
	default:
		uh.Logger.Error(msg, slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, genericError)
	}
}
