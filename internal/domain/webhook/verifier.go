package webhook

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Signature header names set by the provider on every webhook.
const (
	HeaderRequestID = "X-Fal-Webhook-Request-Id"
	HeaderUserID    = "X-Fal-Webhook-User-Id"
	HeaderTimestamp = "X-Fal-Webhook-Timestamp"
	HeaderSignature = "X-Fal-Webhook-Signature"
)

// KeyFetcher loads the provider's current Ed25519 public keys.
type KeyFetcher func(ctx context.Context) ([]ed25519.PublicKey, error)

// Verifier checks the detached Ed25519 signature the provider attaches
// to webhook deliveries. Keys come from the provider's JWKS document
// and are cached; the cache is long-lived because key rotation is rare.
type Verifier struct {
	fetch    KeyFetcher
	cacheTTL time.Duration
	maxSkew  time.Duration
	now      func() time.Time
	log      zerolog.Logger

	mu        sync.Mutex
	keys      []ed25519.PublicKey
	fetchedAt time.Time
}

// VerifierOption customizes a Verifier.
type VerifierOption func(*Verifier)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// WithKeyFetcher overrides the JWKS fetch. Used in tests.
func WithKeyFetcher(fetch KeyFetcher) VerifierOption {
	return func(v *Verifier) { v.fetch = fetch }
}

// NewVerifier builds a Verifier fetching keys from jwksURL.
func NewVerifier(jwksURL string, cacheTTL, maxSkew time.Duration, httpClient *http.Client, log zerolog.Logger, opts ...VerifierOption) *Verifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	v := &Verifier{
		fetch:    jwksFetcher(jwksURL, httpClient),
		cacheTTL: cacheTTL,
		maxSkew:  maxSkew,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the four signature headers against the raw body. The
// canonical message is requestId, userId, timestamp and the hex SHA-256
// of the body joined by newlines. Any missing header, stale timestamp
// or non-matching key fails verification.
func (v *Verifier) Verify(ctx context.Context, headers http.Header, body []byte) error {
	requestID := headers.Get(HeaderRequestID)
	userID := headers.Get(HeaderUserID)
	timestamp := headers.Get(HeaderTimestamp)
	signatureHex := headers.Get(HeaderSignature)

	if requestID == "" || userID == "" || timestamp == "" || signatureHex == "" {
		return fmt.Errorf("missing signature headers")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed timestamp header: %w", err)
	}
	skew := v.now().Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > v.maxSkew {
		return fmt.Errorf("webhook timestamp outside tolerance: %ds", skew)
	}

	signature, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("malformed signature header: %w", err)
	}

	bodyHash := sha256.Sum256(body)
	message := []byte(strings.Join([]string{
		requestID,
		userID,
		timestamp,
		hex.EncodeToString(bodyHash[:]),
	}, "\n"))

	keys, err := v.publicKeys(ctx)
	if err != nil {
		return fmt.Errorf("fetch verification keys: %w", err)
	}

	for _, key := range keys {
		if ed25519.Verify(key, message, signature) {
			return nil
		}
	}
	return fmt.Errorf("signature does not match any published key")
}

func (v *Verifier) publicKeys(ctx context.Context) ([]ed25519.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys != nil && v.now().Sub(v.fetchedAt) < v.cacheTTL {
		return v.keys, nil
	}

	keys, err := v.fetch(ctx)
	if err != nil {
		// Serve stale keys rather than rejecting webhooks while the
		// JWKS endpoint is down.
		if v.keys != nil {
			v.log.Warn().Err(err).Msg("JWKS refresh failed, serving cached keys")
			return v.keys, nil
		}
		return nil, err
	}

	v.keys = keys
	v.fetchedAt = v.now()
	return keys, nil
}

type jwksDocument struct {
	Keys []struct {
		Kty string `json:"kty"`
		Crv string `json:"crv"`
		X   string `json:"x"`
	} `json:"keys"`
}

func jwksFetcher(jwksURL string, client *http.Client) KeyFetcher {
	return func(ctx context.Context) ([]ed25519.PublicKey, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("JWKS endpoint returned %d", resp.StatusCode)
		}

		var doc jwksDocument
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode JWKS document: %w", err)
		}

		var keys []ed25519.PublicKey
		for _, k := range doc.Keys {
			if k.Kty != "OKP" || k.Crv != "Ed25519" || k.X == "" {
				continue
			}
			raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(k.X, "="))
			if err != nil || len(raw) != ed25519.PublicKeySize {
				continue
			}
			keys = append(keys, ed25519.PublicKey(raw))
		}
		if len(keys) == 0 {
			return nil, fmt.Errorf("JWKS document contains no Ed25519 keys")
		}
		return keys, nil
	}
}
