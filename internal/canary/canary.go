package canary

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"webtrap/internal/identity"
	"webtrap/internal/store"
	"webtrap/pkg/models"
)

const tokenKeyPrefix = "webtrap:canary:"

var tokenPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// ErrUnknownToken covers malformed and unknown tokens alike. Callers
// must never distinguish the two cases in responses, or the callback
// endpoint becomes a token-scanning oracle.
var ErrUnknownToken = errors.New("unknown canary token")

// Config controls the protocol.
type Config struct {
	Retention    time.Duration
	CallbackPath string
}

// Protocol issues single-use correlation tokens for decoy documents and
// binds later callbacks to the issuing event.
type Protocol struct {
	store  store.Store
	hasher *identity.Hasher
	cfg    Config
	now    func() time.Time
}

// NewProtocol creates a Protocol with defaulted configuration.
func NewProtocol(st store.Store, hasher *identity.Hasher, cfg Config) *Protocol {
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = "/cdn/pixel"
	}
	return &Protocol{store: st, hasher: hasher, cfg: cfg, now: time.Now}
}

// Issue generates an unguessable token bound to the requesting identity
// and the decoy document being served.
func (p *Protocol) Issue(ctx context.Context, visitorID, documentPath string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate canary token: %w", err)
	}
	token := hex.EncodeToString(buf)

	record := models.CanaryToken{
		Token:        token,
		Identity:     visitorID,
		IssuedAt:     p.now().UTC(),
		DocumentPath: documentPath,
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal canary token: %w", err)
	}
	if err := p.store.Set(ctx, tokenKeyPrefix+token, string(raw), p.cfg.Retention); err != nil {
		return "", fmt.Errorf("persist canary token: %w", err)
	}
	return token, nil
}

// CallbackContext carries what the callback request exposes: transport
// headers plus an optional client-supplied payload.
type CallbackContext struct {
	SourceOrigin   string
	UserAgent      string
	AcceptLanguage string
	Referer        string
	Client         *ClientPayload
}

// ClientPayload is the structured body richer callbacks post. Every
// field is independently validated before storage.
type ClientPayload struct {
	Timezone     string `json:"timezone"`
	Platform     string `json:"platform"`
	ScreenWidth  int    `json:"screen_width"`
	ScreenHeight int    `json:"screen_height"`
	CanvasHash   string `json:"canvas_hash"`
	WebRTCAddr   string `json:"webrtc_addr"`
}

// Callback binds a phone-home to its issuing event. The opened flag
// transitions at most once; repeat callbacks only refresh the stored
// fingerprint. Returns the token record as it was before this callback
// so callers can tell first open from repeats.
func (p *Protocol) Callback(ctx context.Context, token string, cb CallbackContext) (*models.CanaryToken, *models.Fingerprint, error) {
	if !tokenPattern.MatchString(token) {
		return nil, nil, ErrUnknownToken
	}

	raw, err := p.store.Get(ctx, tokenKeyPrefix+token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrUnknownToken
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load canary token: %w", err)
	}

	var record models.CanaryToken
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, nil, ErrUnknownToken
	}
	prior := record

	fp := p.fingerprint(cb)
	now := p.now().UTC()
	if !record.Opened {
		record.Opened = true
		record.OpenedAt = &now
	}
	record.Fingerprint = fp

	ttl := p.cfg.Retention - now.Sub(record.IssuedAt)
	if ttl < time.Minute {
		ttl = time.Minute
	}
	updated, err := json.Marshal(record)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal canary token: %w", err)
	}
	if err := p.store.Set(ctx, tokenKeyPrefix+token, string(updated), ttl); err != nil {
		return nil, nil, fmt.Errorf("persist canary open: %w", err)
	}

	return &prior, fp, nil
}

// fingerprint builds the forensic record. Transport fields are taken as
// observed; client-supplied fields only survive validation. Network
// addresses are hashed, never stored raw.
func (p *Protocol) fingerprint(cb CallbackContext) *models.Fingerprint {
	fp := &models.Fingerprint{
		CapturedAt:     p.now().UTC(),
		UserAgent:      clampString(cb.UserAgent, 200),
		AcceptLanguage: clampString(cb.AcceptLanguage, 64),
		Referer:        clampString(cb.Referer, 200),
	}
	if cb.SourceOrigin != "" {
		fp.SourceHash = p.hasher.Hash(cb.SourceOrigin)
	}

	client := cb.Client
	if client == nil {
		return fp
	}
	if v := clampString(client.Timezone, 64); validTextField(v) {
		fp.Timezone = v
	}
	if v := clampString(client.Platform, 64); validTextField(v) {
		fp.Platform = v
	}
	if client.ScreenWidth > 0 && client.ScreenWidth <= 16384 {
		fp.ScreenWidth = client.ScreenWidth
	}
	if client.ScreenHeight > 0 && client.ScreenHeight <= 16384 {
		fp.ScreenHeight = client.ScreenHeight
	}
	if validHexField(client.CanvasHash, 128) {
		fp.CanvasHash = client.CanvasHash
	}
	if validDottedQuad(client.WebRTCAddr) {
		fp.WebRTCAddrHash = p.hasher.Hash(client.WebRTCAddr)
	}
	return fp
}

func clampString(v string, max int) string {
	if len(v) > max {
		return v[:max]
	}
	return v
}

// validTextField accepts printable ASCII plus a handful of separators.
func validTextField(v string) bool {
	if v == "" {
		return false
	}
	for _, c := range v {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

func validHexField(v string, max int) bool {
	if v == "" || len(v) > max {
		return false
	}
	for _, c := range v {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// validDottedQuad checks a claimed network address is dotted-quad
// shaped with every octet in range before it is trusted enough to hash.
func validDottedQuad(v string) bool {
	if v == "" || len(v) > 15 {
		return false
	}
	octets := 0
	current := -1
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == '.' {
			if current < 0 || current > 255 {
				return false
			}
			octets++
			current = -1
			continue
		}
		c := v[i]
		if c < '0' || c > '9' {
			return false
		}
		if current < 0 {
			current = 0
		}
		current = current*10 + int(c-'0')
	}
	return octets == 4
}
