package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/piyush-mk/NeoFi-Backend-API/internal/auth"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/domain/ids"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email is already taken")
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrInactiveUser       = errors.New("inactive user")
)

type User struct {
	ID           string
	ULID         string
	Email        string
	Username     string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CreateParams struct {
	ULID         string
	Email        string
	Username     string
	PasswordHash string
}

type Repository interface {
	Create(ctx context.Context, params CreateParams) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByULID(ctx context.Context, ulid string) (*User, error)
}

// RegisterInput is validated with validator/v10 tags before any lookup.
type RegisterInput struct {
	Email    string `validate:"required,email"`
	Username string `validate:"required,min=3,max=64,alphanumunicode"`
	Password string `validate:"required,min=8,max=128"`
}

// Service handles registration and credential verification. Token issuance is
// the API layer's concern.
type Service struct {
	repo       Repository
	validate   *validator.Validate
	bcryptCost int
	logger     zerolog.Logger
}

func NewService(repo Repository, bcryptCost int, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		validate:   validator.New(),
		bcryptCost: bcryptCost,
		logger:     logger.With().Str("component", "users").Logger(),
	}
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (*User, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid registration: %w", err)
	}

	if existing, err := s.repo.GetByEmail(ctx, input.Email); err == nil && existing != nil {
		return nil, ErrEmailTaken
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing, err := s.repo.GetByUsername(ctx, input.Username); err == nil && existing != nil {
		return nil, ErrUsernameTaken
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	userULID, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("mint user ulid: %w", err)
	}

	user, err := s.repo.Create(ctx, CreateParams{
		ULID:         userULID,
		Email:        input.Email,
		Username:     input.Username,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user", user.ULID).Msg("user registered")
	return user, nil
}

// Authenticate verifies email + password and returns the active user. Wrong
// email and wrong password are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return user, nil
}

func (s *Service) GetByULID(ctx context.Context, ulid string) (*User, error) {
	return s.repo.GetByULID(ctx, ulid)
}
