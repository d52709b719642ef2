package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidInput = errors.New("profile: invalid input")

// MaxBatch caps the usernames accepted by one batch lookup.
const MaxBatch = 100

type UpdateRequest struct {
	FirstName      *string `json:"first_name" validate:"omitempty,max=64"`
	MiddleName     *string `json:"middle_name" validate:"omitempty,max=64"`
	LastName       *string `json:"last_name" validate:"omitempty,max=64"`
	Phone          *string `json:"phone" validate:"omitempty,e164"`
	ProfilePicture *string `json:"profile_picture" validate:"omitempty,url"`
	Status         *string `json:"status" validate:"omitempty,oneof=online offline away busy"`
}

// Service serves profile reads and the edits a user may make to the fields
// the profile service owns.
type Service struct {
	store    Store
	validate *validator.Validate
	logger   *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

func (s *Service) Get(ctx context.Context, username string) (*Profile, error) {
	return s.store.FindActiveByUsername(ctx, username)
}

func (s *Service) ByEmail(ctx context.Context, email string) (*Profile, error) {
	return s.store.FindActiveByEmail(ctx, email)
}

func (s *Service) Update(ctx context.Context, username string, req UpdateRequest) (*Profile, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	d := Details{
		FirstName:      req.FirstName,
		MiddleName:     req.MiddleName,
		LastName:       req.LastName,
		Phone:          req.Phone,
		ProfilePicture: req.ProfilePicture,
	}
	if req.Status != nil {
		status := Presence(*req.Status)
		d.Status = &status
	}

	p, err := s.store.UpdateDetails(ctx, username, d)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Profile updated", slog.String("username", username))
	return p, nil
}

func (s *Service) Search(ctx context.Context, term string, limit, offset int) ([]Profile, int64, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, 0, fmt.Errorf("%w: search term is required", ErrInvalidInput)
	}
	return s.store.SearchActive(ctx, term, limit, offset)
}

// Batch looks up a comma separated list of usernames. Unknown usernames are
// left out of the result.
func (s *Service) Batch(ctx context.Context, usernamesCS string) ([]Profile, error) {
	var usernames []string
	seen := map[string]struct{}{}
	for _, u := range strings.Split(usernamesCS, ",") {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		usernames = append(usernames, u)
	}

	if len(usernames) == 0 {
		return nil, fmt.Errorf("%w: no usernames provided", ErrInvalidInput)
	}
	if len(usernames) > MaxBatch {
		return nil, fmt.Errorf("%w: at most %d usernames per batch", ErrInvalidInput, MaxBatch)
	}

	s.logger.Info("Batch profile lookup", slog.Int("count", len(usernames)))
	return s.store.FindActiveByUsernames(ctx, usernames)
}
