package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmehra2102/shopeasy/internal/identity/domain"
)

type Service struct {
	log  *slog.Logger
	repo Repository
	cost int
	// dummyHash is compared against when the username is unknown so both
	// failure paths cost one bcrypt comparison.
	dummyHash []byte
}

type Option func(*Service)

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithCost(cost int) Option { return func(s *Service) { s.cost = cost } }

func NewService(log *slog.Logger, repo Repository, opts ...Option) *Service {
	s := &Service{log: log, repo: repo, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)
	return s
}

func (s *Service) Signup(ctx context.Context, req domain.SignupRequest) (domain.User, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return domain.User{}, err
	}
	return s.create(ctx, req, domain.RoleCustomer)
}

func (s *Service) create(ctx context.Context, req domain.SignupRequest, role domain.Role) (domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.repo.Create(ctx, domain.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         role,
	})
	if err != nil {
		return domain.User{}, err
	}
	s.log.InfoContext(ctx, "user created", "user_id", u.ID, "username", u.Username, "role", u.Role)
	return u, nil
}

// Authenticate returns the user if password matches. Unknown users and
// wrong passwords both yield domain.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	u, err := s.repo.ByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, domain.ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	return u, nil
}

// EnsureAdmin creates the admin account if it does not exist and promotes
// an existing user of that name. The password of an existing account is
// left unchanged.
func (s *Service) EnsureAdmin(ctx context.Context, username, email, password string) (domain.User, error) {
	u, err := s.repo.ByUsername(ctx, username)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		req := domain.SignupRequest{Username: username, Email: email, Password: password}.Normalize()
		if err := req.Validate(); err != nil {
			return domain.User{}, err
		}
		return s.create(ctx, req, domain.RoleAdmin)
	case err != nil:
		return domain.User{}, err
	case u.Role != domain.RoleAdmin:
		if err := s.repo.SetRole(ctx, u.ID, domain.RoleAdmin); err != nil {
			return domain.User{}, err
		}
		u.Role = domain.RoleAdmin
		s.log.InfoContext(ctx, "user promoted to admin", "user_id", u.ID)
	}
	return u, nil
}
