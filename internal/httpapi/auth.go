package httpapi

import (
	"context"
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"graphi/backend/internal/domain"
	"graphi/backend/internal/service"
	"graphi/backend/internal/xid"
)

const tokenIssuer = "graphi"

// Authenticator checks an email and password pair.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (domain.User, error)
}

// AuthManager issues and verifies bearer tokens. Every login starts a new
// session, so store grants never carry over from one login to the next.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    Authenticator
	now      func() time.Time
}

type sessionClaims struct {
	jwtlib.RegisteredClaims
	SessionID string `json:"sid"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users Authenticator) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
		now:      time.Now,
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	user, err := a.users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	expiresAt := a.now().UTC().Add(a.tokenTTL)
	token, err := a.sign(user.ID, xid.New("ses"), expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (service.Actor, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer), jwtlib.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return service.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return service.Actor{}, errors.New("invalid token subject")
	}
	if claims.SessionID == "" {
		return service.Actor{}, errors.New("token has no session")
	}
	return service.Actor{UserID: sub, SessionID: claims.SessionID}, nil
}

func (a *AuthManager) sign(userID, sessionID string, expiresAt time.Time) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwtlib.NewNumericDate(a.now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		SessionID: sessionID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
