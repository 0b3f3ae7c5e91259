package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"graphi/backend/internal/apperr"
	"graphi/backend/internal/domain"
	"graphi/backend/internal/xid"
)

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || len(req.Password) < 8 {
		return domain.User{}, apperr.Validation("email and a password of at least 8 characters are required")
	}
	currency := domain.NormalizeCurrency(req.PreferredCurrency)
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	if !domain.ValidCurrency(currency) {
		return domain.User{}, apperr.Validation("unknown currency %q", req.PreferredCurrency)
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.User{}, err
	}
	user := domain.User{
		ID:                xid.New("usr"),
		Email:             email,
		Name:              strings.TrimSpace(req.Name),
		PreferredCurrency: currency,
		PasswordHash:      hash,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", user.ID))
	return user, nil
}

// Authenticate checks an email and password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, apperr.ErrNotFound) {
		return domain.User{}, apperr.ErrBadCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if !verifyPassword(user.PasswordHash, password) {
		return domain.User{}, apperr.ErrBadCredentials
	}
	return *user, nil
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
