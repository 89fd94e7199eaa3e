package canary

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webtrap/internal/identity"
	"webtrap/internal/store"
)

func newTestProtocol(t *testing.T) (*Protocol, store.Store) {
	t.Helper()
	hasher, err := identity.NewHasher("canary-test-secret")
	require.NoError(t, err)
	st := store.NewMemory()
	return NewProtocol(st, hasher, Config{Retention: time.Hour}), st
}

func TestIssueAndFirstCallback(t *testing.T) {
	p, _ := newTestProtocol(t)
	ctx := context.Background()

	token, err := p.Issue(ctx, "visitor-a", "/backup.sql")
	require.NoError(t, err)
	assert.Regexp(t, "^[0-9a-f]{32}$", token)

	prior, fp, err := p.Callback(ctx, token, CallbackContext{
		SourceOrigin: "203.0.113.9",
		UserAgent:    "curl/8.0",
	})
	require.NoError(t, err)
	assert.False(t, prior.Opened, "prior record reflects state before the callback")
	assert.Equal(t, "visitor-a", prior.Identity)
	assert.Equal(t, "/backup.sql", prior.DocumentPath)
	assert.Equal(t, "curl/8.0", fp.UserAgent)
	assert.NotEmpty(t, fp.SourceHash)
	assert.NotEqual(t, "203.0.113.9", fp.SourceHash)
}

func TestOpenedTransitionIsOneWay(t *testing.T) {
	p, _ := newTestProtocol(t)
	ctx := context.Background()

	token, err := p.Issue(ctx, "visitor-a", "/.env")
	require.NoError(t, err)

	first, _, err := p.Callback(ctx, token, CallbackContext{})
	require.NoError(t, err)
	assert.False(t, first.Opened)

	second, _, err := p.Callback(ctx, token, CallbackContext{UserAgent: "wget/1.21"})
	require.NoError(t, err)
	assert.True(t, second.Opened)
	require.NotNil(t, second.OpenedAt)
	openedAt := *second.OpenedAt

	third, fp, err := p.Callback(ctx, token, CallbackContext{})
	require.NoError(t, err)
	require.NotNil(t, third.OpenedAt)
	assert.Equal(t, openedAt, *third.OpenedAt, "repeat callbacks keep the original open time")
	// The fingerprint is still refreshed.
	assert.Empty(t, fp.UserAgent)
}

func TestMalformedAndUnknownTokensLookIdentical(t *testing.T) {
	p, _ := newTestProtocol(t)
	ctx := context.Background()

	for _, token := range []string{
		"",
		"not-a-token",
		"UPPERCASE00000000000000000000000",
		strings.Repeat("a", 31),
		strings.Repeat("a", 33),
		strings.Repeat("f", 32), // well-formed, never issued
	} {
		prior, fp, err := p.Callback(ctx, token, CallbackContext{})
		assert.ErrorIs(t, err, ErrUnknownToken, "token %q", token)
		assert.Nil(t, prior)
		assert.Nil(t, fp)
	}
}

func TestClientPayloadValidation(t *testing.T) {
	p, _ := newTestProtocol(t)
	ctx := context.Background()

	token, err := p.Issue(ctx, "visitor-a", "/backup.sql")
	require.NoError(t, err)

	_, fp, err := p.Callback(ctx, token, CallbackContext{
		Client: &ClientPayload{
			Timezone:     "America/New_York",
			Platform:     "Linux x86_64\x00evil", // control byte rejects the field
			ScreenWidth:  1920,
			ScreenHeight: 99999, // out of range
			CanvasHash:   "deadbeefcafe1234",
			WebRTCAddr:   "192.168.1.40",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "America/New_York", fp.Timezone)
	assert.Empty(t, fp.Platform)
	assert.Equal(t, 1920, fp.ScreenWidth)
	assert.Zero(t, fp.ScreenHeight)
	assert.Equal(t, "deadbeefcafe1234", fp.CanvasHash)
	assert.NotEmpty(t, fp.WebRTCAddrHash)
	assert.NotContains(t, fp.WebRTCAddrHash, "192.168")
}

func TestDottedQuadValidation(t *testing.T) {
	valid := []string{"10.0.0.1", "255.255.255.255", "0.0.0.0", "192.168.1.40"}
	for _, v := range valid {
		assert.True(t, validDottedQuad(v), "%q should validate", v)
	}

	invalid := []string{
		"", "256.1.1.1", "1.2.3", "1.2.3.4.5", "1..2.3", ".1.2.3",
		"1.2.3.4.", "a.b.c.d", "999.999.999.999", "1.2.3.4 ",
	}
	for _, v := range invalid {
		assert.False(t, validDottedQuad(v), "%q should be rejected", v)
	}
}

func TestCallbackSurvivesCorruptRecordAsUnknown(t *testing.T) {
	p, st := newTestProtocol(t)
	ctx := context.Background()

	token, err := p.Issue(ctx, "visitor-a", "/backup.sql")
	require.NoError(t, err)
	require.NoError(t, st.Set(ctx, tokenKeyPrefix+token, "{corrupt", time.Hour))

	_, _, err = p.Callback(ctx, token, CallbackContext{})
	assert.ErrorIs(t, err, ErrUnknownToken)
}
