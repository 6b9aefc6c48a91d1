package patient

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOTPStore(t *testing.T) (*OTPStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewOTPStore(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestOTPIssueAndVerify(t *testing.T) {
	store, _ := newTestOTPStore(t)
	ctx := context.Background()

	code, err := store.Issue(ctx, "70123456")
	require.NoError(t, err)
	assert.Len(t, code, 4)

	ok, err := store.Verify(ctx, "70123456", code)
	require.NoError(t, err)
	assert.True(t, ok)

	// The code is consumed on success.
	ok, err = store.Verify(ctx, "70123456", code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOTPWrongCode(t *testing.T) {
	store, _ := newTestOTPStore(t)
	ctx := context.Background()

	code, err := store.Issue(ctx, "70123456")
	require.NoError(t, err)

	ok, err := store.Verify(ctx, "70123456", "0000")
	if code == "0000" {
		t.Skip("generated code collides with the probe value")
	}
	require.NoError(t, err)
	assert.False(t, ok)

	// A failed attempt does not consume the code.
	ok, err = store.Verify(ctx, "70123456", code)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOTPExpires(t *testing.T) {
	store, mr := newTestOTPStore(t)
	ctx := context.Background()

	code, err := store.Issue(ctx, "70123456")
	require.NoError(t, err)

	mr.FastForward(OTPTTL)

	ok, err := store.Verify(ctx, "70123456", code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOTPReissueReplaces(t *testing.T) {
	store, _ := newTestOTPStore(t)
	ctx := context.Background()

	first, err := store.Issue(ctx, "70123456")
	require.NoError(t, err)
	second, err := store.Issue(ctx, "70123456")
	require.NoError(t, err)

	if first != second {
		ok, err := store.Verify(ctx, "70123456", first)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	ok, err := store.Verify(ctx, "70123456", second)
	require.NoError(t, err)
	assert.True(t, ok)
}
