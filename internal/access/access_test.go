package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphi/backend/internal/apperr"
	"graphi/backend/internal/cache"
	"graphi/backend/internal/domain"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

var (
	owner    = domain.User{ID: "usr-owner"}
	stranger = domain.User{ID: "usr-stranger"}
)

func setup(t *testing.T) (*Authorizer, *clock, cache.Store, domain.Store) {
	t.Helper()
	c := &clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	a := NewAuthorizer(24*time.Hour, c.Now, nil)
	sess := cache.Scoped(cache.NewMemoryWithClock(c.Now), "session:abc:")

	store := domain.Store{ID: "str-1", OwnerID: owner.ID, Name: "Shop"}
	require.NoError(t, a.SetPasskey(&store, "open-sesame"))
	return a, c, sess, store
}

func TestOpenStoreNeedsNoPasskey(t *testing.T) {
	a := NewAuthorizer(0, nil, nil)
	sess := cache.NewMemory()
	store := domain.Store{ID: "str-1", OwnerID: owner.ID}
	ctx := context.Background()

	assert.True(t, a.IsAuthorized(ctx, sess, store, owner))
	ok, err := a.Authorize(ctx, sess, store, owner, "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, a.Require(ctx, sess, store, owner))
	assert.Equal(t, DefaultWindow, a.Window())
}

func TestNonOwnerIsAlwaysRejected(t *testing.T) {
	a, _, sess, store := setup(t)
	ctx := context.Background()

	ok, err := a.Authorize(ctx, sess, store, stranger, "open-sesame")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, a.IsAuthorized(ctx, sess, store, stranger))
	assert.ErrorIs(t, a.Require(ctx, sess, store, stranger), apperr.ErrNotOwner)
	assert.ErrorIs(t, a.Revoke(ctx, sess, store, stranger), apperr.ErrNotOwner)

	store.PasskeyHash = ""
	assert.False(t, a.IsAuthorized(ctx, sess, store, stranger))
}

func TestAuthorizeWithPasskey(t *testing.T) {
	a, _, sess, store := setup(t)
	ctx := context.Background()

	assert.False(t, a.IsAuthorized(ctx, sess, store, owner))
	assert.ErrorIs(t, a.Require(ctx, sess, store, owner), apperr.ErrPasskeyRequired)

	ok, err := a.Authorize(ctx, sess, store, owner, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, a.IsAuthorized(ctx, sess, store, owner))

	ok, err = a.Authorize(ctx, sess, store, owner, "open-sesame")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, a.IsAuthorized(ctx, sess, store, owner))
	assert.NoError(t, a.Require(ctx, sess, store, owner))

	raw, found, err := sess.Get(ctx, "authorization_for_store_"+store.Signature+"_expires_at")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2024-06-02T12:00:00Z", raw)
}

func TestGrantsAreScopedToTheSession(t *testing.T) {
	a, c, _, store := setup(t)
	shared := cache.NewMemoryWithClock(c.Now)
	mine, theirs := cache.Scoped(shared, "session:a:"), cache.Scoped(shared, "session:b:")
	ctx := context.Background()

	ok, err := a.Authorize(ctx, mine, store, owner, "open-sesame")
	require.NoError(t, err)
	require.True(t, ok)

	assert.True(t, a.IsAuthorized(ctx, mine, store, owner))
	assert.False(t, a.IsAuthorized(ctx, theirs, store, owner))
}

func TestGrantExpires(t *testing.T) {
	a, c, sess, store := setup(t)
	ctx := context.Background()

	ok, err := a.Authorize(ctx, sess, store, owner, "open-sesame")
	require.NoError(t, err)
	require.True(t, ok)

	c.now = c.now.Add(24*time.Hour - time.Second)
	assert.True(t, a.IsAuthorized(ctx, sess, store, owner))

	c.now = c.now.Add(time.Second)
	assert.False(t, a.IsAuthorized(ctx, sess, store, owner))
}

func TestExpiredGrantIsDeleted(t *testing.T) {
	a, c, _, store := setup(t)
	sess := cache.NewMemory()
	ctx := context.Background()
	key := grantKey(store.Signature)

	require.NoError(t, sess.Set(ctx, key, c.now.Add(-time.Minute).Format(time.RFC3339), 0))
	assert.False(t, a.IsAuthorized(ctx, sess, store, owner))
	_, found, _ := sess.Get(ctx, key)
	assert.False(t, found)

	require.NoError(t, sess.Set(ctx, key, "not-a-time", 0))
	assert.False(t, a.IsAuthorized(ctx, sess, store, owner))
	_, found, _ = sess.Get(ctx, key)
	assert.False(t, found)
}

func TestRotateSignatureRevokesGrants(t *testing.T) {
	a, _, sess, store := setup(t)
	ctx := context.Background()

	ok, err := a.Authorize(ctx, sess, store, owner, "open-sesame")
	require.NoError(t, err)
	require.True(t, ok)

	old := store.Signature
	a.RotateSignature(&store)
	assert.NotEqual(t, old, store.Signature)
	assert.Len(t, store.Signature, 32)
	assert.False(t, a.IsAuthorized(ctx, sess, store, owner))
}

func TestRevokeDeletesCurrentGrant(t *testing.T) {
	a, _, sess, store := setup(t)
	ctx := context.Background()

	ok, err := a.Authorize(ctx, sess, store, owner, "open-sesame")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, a.Revoke(ctx, sess, store, owner))
	assert.False(t, a.IsAuthorized(ctx, sess, store, owner))
}

func TestSetPasskey(t *testing.T) {
	a := NewAuthorizer(time.Hour, nil, nil)
	store := domain.Store{ID: "str-1", OwnerID: owner.ID}

	err := a.SetPasskey(&store, "abc")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.False(t, store.HasPasskey())

	require.NoError(t, a.SetPasskey(&store, "abcd"))
	assert.True(t, store.HasPasskey())
	assert.NotEqual(t, "abcd", store.PasskeyHash)
	first := store.Signature
	assert.NotEmpty(t, first)

	a.ClearPasskey(&store)
	assert.False(t, store.HasPasskey())
	assert.NotEqual(t, first, store.Signature)
}

func TestMisconfiguredStoreIsReportedDistinctly(t *testing.T) {
	a, _, sess, store := setup(t)
	store.Signature = ""
	ctx := context.Background()

	err := a.Require(ctx, sess, store, owner)
	assert.ErrorIs(t, err, apperr.ErrStoreMisconfigured)
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))

	_, err = a.Authorize(ctx, sess, store, owner, "open-sesame")
	assert.ErrorIs(t, err, apperr.ErrStoreMisconfigured)
	assert.False(t, a.IsAuthorized(ctx, sess, store, owner))
}
