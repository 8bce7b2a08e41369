package service

import (
	"context"
	"strings"

	"NeuroBot/internal/model"
	"NeuroBot/internal/repo"
)

type UserService interface {
	// EnsureUser returns the stored user, creating a bare record on first
	// contact.
	EnsureUser(ctx context.Context, userID string) (*model.User, error)
	DisplayName(ctx context.Context, userID string) string
}

type userService struct {
	repo repo.UserRepository
}

func NewUserService(repo repo.UserRepository) UserService {
	return &userService{
		repo: repo,
	}
}

func (s *userService) EnsureUser(ctx context.Context, userID string) (*model.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidPayload
	}
	return s.repo.FindOrCreate(ctx, model.User{ID: userID, Username: userID})
}

func (s *userService) DisplayName(ctx context.Context, userID string) string {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil || u.Name() == "" {
		return userID
	}
	return u.Name()
}
