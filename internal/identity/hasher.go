package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"webtrap/pkg/models"
)

// Placeholder secrets that must never reach production. Construction
// fails on these so a misconfigured deployment dies at startup, not at
// request time.
var placeholderSecrets = map[string]struct{}{
	"":                   {},
	"changeme":           {},
	"change-me":          {},
	"secret":             {},
	"webtrap-dev-secret": {},
	"insert-secret-here": {},
}

// Hasher derives stable, non-reversible visitor identities from network
// origins. Same origin and secret always produce the same identity; a
// different secret produces an unrelated one.
type Hasher struct {
	secret string
}

// NewHasher creates a Hasher, refusing placeholder secrets.
func NewHasher(secret string) (*Hasher, error) {
	trimmed := strings.TrimSpace(secret)
	if _, bad := placeholderSecrets[strings.ToLower(trimmed)]; bad {
		return nil, fmt.Errorf("identity secret is empty or a known placeholder; set a unique value")
	}
	return &Hasher{secret: trimmed}, nil
}

// Hash returns the hex identity for a raw network origin.
func (h *Hasher) Hash(origin string) string {
	sum := sha256.Sum256([]byte(h.secret + origin))
	return hex.EncodeToString(sum[:])
}

// Origin extracts the raw network origin for a request descriptor: the
// first hop of a forwarded-for chain when present, else the source
// origin, else loopback.
func Origin(req *models.RequestDescriptor) string {
	origin := ""
	if req != nil {
		if fwd := req.Header("X-Forwarded-For"); fwd != "" {
			origin = strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
		}
		if origin == "" {
			origin = strings.TrimSpace(req.SourceOrigin)
		}
	}
	if origin == "" {
		origin = "127.0.0.1"
	}
	return origin
}

// FromRequest derives the identity for a request descriptor.
func (h *Hasher) FromRequest(req *models.RequestDescriptor) string {
	return h.Hash(Origin(req))
}
