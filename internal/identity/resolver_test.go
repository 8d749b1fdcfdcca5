package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memCarrier struct {
	token string
	ttl   time.Duration
	sets  int
}

func (m *memCarrier) Token() string { return m.token }

func (m *memCarrier) SetToken(value string, ttl time.Duration) {
	m.token = value
	m.ttl = ttl
	m.sets++
}

func (m *memCarrier) ClearToken() {
	m.token = ""
	m.ttl = -1
}

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	return NewResolver(NewTokenSigner("test-secret"), time.Hour, zap.NewNop())
}

func TestActiveWithoutToken(t *testing.T) {
	r := newResolver(t)
	assert.Equal(t, "t1", r.Active(&memCarrier{}, "t1"))
}

func TestSwitchRoundTrip(t *testing.T) {
	r := newResolver(t)
	carrier := &memCarrier{}

	result, err := r.Switch(carrier, "t1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", result.ActiveID)
	assert.False(t, result.Cleared)
	assert.Equal(t, HomePath, result.Redirect)
	assert.Equal(t, time.Hour, carrier.ttl)

	// Resolution does not re-validate ownership: the token names the user,
	// authorization happens at the point of use.
	assert.Equal(t, "s1", r.Active(carrier, "t1"))
}

func TestSwitchToSelfClearsToken(t *testing.T) {
	r := newResolver(t)
	carrier := &memCarrier{}

	_, err := r.Switch(carrier, "t1", "s1")
	require.NoError(t, err)

	result, err := r.Switch(carrier, "t1", "t1")
	require.NoError(t, err)
	assert.True(t, result.Cleared)
	assert.Equal(t, "t1", result.ActiveID)
	assert.Empty(t, carrier.token)
	assert.Equal(t, "t1", r.Active(carrier, "t1"))
}

func TestSwitchToSelfIsIdempotent(t *testing.T) {
	r := newResolver(t)
	carrier := &memCarrier{}

	first, err := r.Switch(carrier, "t1", "t1")
	require.NoError(t, err)
	second, err := r.Switch(carrier, "t1", "t1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Empty(t, carrier.token)
}

func TestSwitchReissuesFreshTTL(t *testing.T) {
	r := newResolver(t)
	carrier := &memCarrier{}

	_, err := r.Switch(carrier, "t1", "s1")
	require.NoError(t, err)
	_, err = r.Switch(carrier, "t1", "s3")
	require.NoError(t, err)

	assert.Equal(t, 2, carrier.sets)
	assert.Equal(t, "s3", r.Active(carrier, "t1"))
}

func TestActiveFallsBackOnGarbageToken(t *testing.T) {
	r := newResolver(t)
	carrier := &memCarrier{token: "not-a-token"}
	assert.Equal(t, "t1", r.Active(carrier, "t1"))
}

func TestActiveFallsBackOnForgedToken(t *testing.T) {
	r := newResolver(t)
	forged, err := NewTokenSigner("other-secret").Issue("s1", time.Hour)
	require.NoError(t, err)

	carrier := &memCarrier{token: forged}
	assert.Equal(t, "t1", r.Active(carrier, "t1"))
}

func TestActiveFallsBackOnExpiredToken(t *testing.T) {
	signer := NewTokenSigner("test-secret")
	issuedAt := time.Now().Add(-2 * time.Hour)
	signer.now = func() time.Time { return issuedAt }

	token, err := signer.Issue("s1", time.Hour)
	require.NoError(t, err)

	live := NewTokenSigner("test-secret")
	r := NewResolver(live, time.Hour, zap.NewNop())
	carrier := &memCarrier{token: token}
	assert.Equal(t, "t1", r.Active(carrier, "t1"))
}

func TestTokenSignerRoundTrip(t *testing.T) {
	signer := NewTokenSigner("test-secret")
	token, err := signer.Issue("s1", time.Hour)
	require.NoError(t, err)

	id, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "s1", id)
}

func TestTokenSignerRequiresUserID(t *testing.T) {
	_, err := NewTokenSigner("test-secret").Issue("", time.Hour)
	assert.Error(t, err)
}
