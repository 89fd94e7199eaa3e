package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webtrap/pkg/models"
)

func TestNewHasherRejectsPlaceholderSecrets(t *testing.T) {
	for _, secret := range []string{"", "  ", "changeme", "CHANGEME", " secret ", "webtrap-dev-secret"} {
		_, err := NewHasher(secret)
		assert.Error(t, err, "secret %q", secret)
	}

	h, err := NewHasher("a-real-deployment-secret")
	require.NoError(t, err)
	assert.NotNil(t, h)
}

func TestHashIsStableAndSecretScoped(t *testing.T) {
	h1, err := NewHasher("secret-one")
	require.NoError(t, err)
	h2, err := NewHasher("secret-two")
	require.NoError(t, err)

	a := h1.Hash("203.0.113.9")
	assert.Equal(t, a, h1.Hash("203.0.113.9"))
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, h1.Hash("203.0.113.10"))
	assert.NotEqual(t, a, h2.Hash("203.0.113.9"))
	assert.NotContains(t, a, "203.0.113")
}

func TestOriginPrefersFirstForwardedHop(t *testing.T) {
	req := &models.RequestDescriptor{
		SourceOrigin: "10.0.0.5",
		Headers: map[string]string{
			"X-Forwarded-For": " 198.51.100.7 , 10.0.0.5, 172.16.0.1",
		},
	}
	assert.Equal(t, "198.51.100.7", Origin(req))
}

func TestOriginFallsBackToSourceThenLoopback(t *testing.T) {
	assert.Equal(t, "10.0.0.5", Origin(&models.RequestDescriptor{SourceOrigin: "10.0.0.5"}))
	assert.Equal(t, "127.0.0.1", Origin(&models.RequestDescriptor{}))
	assert.Equal(t, "127.0.0.1", Origin(nil))
}

func TestFromRequestMatchesHashOfOrigin(t *testing.T) {
	h, err := NewHasher("secret-one")
	require.NoError(t, err)

	req := &models.RequestDescriptor{SourceOrigin: "203.0.113.9"}
	assert.Equal(t, h.Hash("203.0.113.9"), h.FromRequest(req))
}
