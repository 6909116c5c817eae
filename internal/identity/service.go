package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/playmate/playmate/internal/apperr"
)

const minPasswordLen = 6

// Service manages identity lifecycle.
type Service struct {
	repo Repository
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register creates a regular user with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	return s.create(ctx, in, RoleUser)
}

// EnsureAdmin creates an admin account if the username is free. An existing
// user with that name is returned unchanged.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (User, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}
	return s.create(ctx, RegisterInput{Username: username, Password: password, Nickname: "admin"}, RoleAdmin)
}

func (s *Service) create(ctx context.Context, in RegisterInput, role Role) (User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return User{}, apperr.E(apperr.KindValidation, "username is required")
	}
	if len(in.Password) < minPasswordLen {
		return User{}, apperr.E(apperr.KindValidation, "password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	nickname := strings.TrimSpace(in.Nickname)
	if nickname == "" {
		nickname = username
	}

	user, err := s.repo.Create(ctx, User{
		Username:     username,
		PasswordHash: hash,
		Nickname:     nickname,
		Avatar:       DefaultAvatar,
		Role:         role,
		IsCompanion:  in.IsCompanion,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return User{}, apperr.E(apperr.KindConflict, "username already exists")
		}
		return User{}, err
	}
	return user, nil
}

// Authenticate verifies credentials.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(creds.Username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, apperr.E(apperr.KindUnauthorized, "invalid username or password")
		}
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(creds.Password)); err != nil {
		return User{}, apperr.E(apperr.KindUnauthorized, "invalid username or password")
	}

	return user, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, apperr.E(apperr.KindNotFound, "user not found")
		}
		return User{}, err
	}
	return user, nil
}
