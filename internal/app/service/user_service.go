package service

import (
	"context"
	"errors"
	"time"

	"github.com/linklit/LinkLit/internal/app/model"
	"github.com/linklit/LinkLit/internal/app/repository"
	"go.uber.org/zap"
)

// ErrMissingUserID rejects user bootstrap without an identity reference.
var ErrMissingUserID = errors.New("user id is required")

// UserService bootstraps account records for authenticated identities.
type UserService struct {
	users  repository.UserRepository
	logger *zap.Logger
}

// NewUserService returns a user bootstrap service.
func NewUserService(users repository.UserRepository, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, logger: logger}
}

// Register creates the account record for a new identity. Safe to call
// repeatedly: an existing record is left untouched.
func (s *UserService) Register(ctx context.Context, id, email, name string) (bool, error) {
	if id == "" {
		return false, ErrMissingUserID
	}

	user := &model.User{
		ID:               id,
		Email:            email,
		Name:             name,
		CustomLinksReset: time.Now(),
	}

	created, err := s.users.CreateIfAbsent(ctx, user)
	if err != nil {
		return false, err
	}
	if created {
		s.logger.Info("user record created", zap.String("user_id", id))
	}
	return created, nil
}
