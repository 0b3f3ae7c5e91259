// Package access gates store-scoped requests behind the store's optional
// passkey. A successful passkey check writes a time-boxed grant into the
// caller's session; grants are keyed by the store's current signature, so
// rotating the signature revokes all of them at once.
package access

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"graphi/backend/internal/apperr"
	"graphi/backend/internal/cache"
	"graphi/backend/internal/domain"
	"graphi/backend/internal/xid"
)

const (
	DefaultWindow     = 24 * time.Hour
	MinPasskeyLength  = 4
	grantKeyPrefix    = "authorization_for_store_"
	grantKeySuffix    = "_expires_at"
	passkeyHashPrefix = "$2"
)

type Authorizer struct {
	window time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewAuthorizer(window time.Duration, now func() time.Time, logger *slog.Logger) *Authorizer {
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authorizer{window: window, now: now, logger: logger.With(slog.String("component", "access"))}
}

// Window is how long a grant stays valid.
func (a *Authorizer) Window() time.Duration {
	return a.window
}

func grantKey(signature string) string {
	return grantKeyPrefix + signature + grantKeySuffix
}

// IsAuthorized reports whether requester may act on store in this session.
// Expired or unreadable grants are deleted as a side effect.
func (a *Authorizer) IsAuthorized(ctx context.Context, sess cache.Store, store domain.Store, requester domain.User) bool {
	ok, err := a.check(ctx, sess, store, requester)
	if err != nil {
		a.logger.WarnContext(ctx, "authorization check failed",
			slog.String("store_id", store.ID), slog.Any("error", err))
		return false
	}
	return ok
}

func (a *Authorizer) check(ctx context.Context, sess cache.Store, store domain.Store, requester domain.User) (bool, error) {
	if !store.OwnedBy(requester.ID) {
		return false, nil
	}
	if !store.HasPasskey() {
		return true, nil
	}
	if store.Signature == "" {
		return false, apperr.ErrStoreMisconfigured.WithDetail("store %s has a passkey but no signature", store.ID)
	}

	key := grantKey(store.Signature)
	raw, found, err := sess.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read grant: %w", err)
	}
	if !found {
		return false, nil
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, raw)
	if err == nil && a.now().Before(expiresAt) {
		return true, nil
	}
	if err := sess.Delete(ctx, key); err != nil {
		return false, fmt.Errorf("delete stale grant: %w", err)
	}
	return false, nil
}

// Authorize checks passkey and, on a match, grants the session access for
// the configured window. A wrong passkey is reported as false, not an error.
func (a *Authorizer) Authorize(ctx context.Context, sess cache.Store, store domain.Store, requester domain.User, passkey string) (bool, error) {
	if !store.OwnedBy(requester.ID) {
		return false, nil
	}
	if !store.HasPasskey() {
		return true, nil
	}
	if store.Signature == "" {
		return false, apperr.ErrStoreMisconfigured.WithDetail("store %s has a passkey but no signature", store.ID)
	}
	if !matchPasskey(store.PasskeyHash, passkey) {
		a.logger.InfoContext(ctx, "store passkey rejected", slog.String("store_id", store.ID))
		return false, nil
	}

	expiresAt := a.now().UTC().Add(a.window)
	if err := sess.Set(ctx, grantKey(store.Signature), expiresAt.Format(time.RFC3339Nano), a.window); err != nil {
		return false, fmt.Errorf("write grant: %w", err)
	}
	a.logger.InfoContext(ctx, "store access granted",
		slog.String("store_id", store.ID), slog.Time("expires_at", expiresAt))
	return true, nil
}

// Revoke drops the session's grant for the store's current signature.
func (a *Authorizer) Revoke(ctx context.Context, sess cache.Store, store domain.Store, requester domain.User) error {
	if !store.OwnedBy(requester.ID) {
		return apperr.ErrNotOwner
	}
	if store.Signature == "" {
		return nil
	}
	return sess.Delete(ctx, grantKey(store.Signature))
}

// Require is IsAuthorized for request boundaries: it explains a refusal.
func (a *Authorizer) Require(ctx context.Context, sess cache.Store, store domain.Store, requester domain.User) error {
	if !store.OwnedBy(requester.ID) {
		return apperr.ErrNotOwner
	}
	ok, err := a.check(ctx, sess, store, requester)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrPasskeyRequired.WithDetail("store %s requires its passkey", store.ID)
	}
	return nil
}

// RotateSignature gives store a fresh signature. Outstanding grants for the
// old signature can no longer be found.
func (a *Authorizer) RotateSignature(store *domain.Store) {
	store.Signature = xid.Signature()
	store.UpdatedAt = a.now().UTC()
}

// SetPasskey hashes passkey onto store and rotates its signature.
func (a *Authorizer) SetPasskey(store *domain.Store, passkey string) error {
	if len(strings.TrimSpace(passkey)) < MinPasskeyLength {
		return apperr.Validation("passkey must be at least %d characters", MinPasskeyLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(passkey), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash passkey: %w", err)
	}
	store.PasskeyHash = string(hash)
	a.RotateSignature(store)
	return nil
}

// ClearPasskey opens the store and rotates its signature.
func (a *Authorizer) ClearPasskey(store *domain.Store) {
	store.PasskeyHash = ""
	a.RotateSignature(store)
}

func matchPasskey(hash, passkey string) bool {
	if passkey == "" || !strings.HasPrefix(hash, passkeyHashPrefix) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(passkey)) == nil
}
