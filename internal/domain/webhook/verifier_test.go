package webhook_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediaforge/services/generation-api/internal/domain/webhook"
)

func signedHeaders(t *testing.T, priv ed25519.PrivateKey, body []byte, ts time.Time) http.Header {
	t.Helper()

	requestID := "req-123"
	userID := "user-456"
	timestamp := strconv.FormatInt(ts.Unix(), 10)

	bodyHash := sha256.Sum256(body)
	message := strings.Join([]string{
		requestID,
		userID,
		timestamp,
		hex.EncodeToString(bodyHash[:]),
	}, "\n")
	signature := ed25519.Sign(priv, []byte(message))

	h := http.Header{}
	h.Set(webhook.HeaderRequestID, requestID)
	h.Set(webhook.HeaderUserID, userID)
	h.Set(webhook.HeaderTimestamp, timestamp)
	h.Set(webhook.HeaderSignature, hex.EncodeToString(signature))
	return h
}

func newTestVerifier(keys []ed25519.PublicKey, now time.Time) *webhook.Verifier {
	return webhook.NewVerifier(
		"http://unused.invalid/jwks.json",
		24*time.Hour,
		5*time.Minute,
		nil,
		zerolog.Nop(),
		webhook.WithClock(func() time.Time { return now }),
		webhook.WithKeyFetcher(func(ctx context.Context) ([]ed25519.PublicKey, error) {
			return keys, nil
		}),
	)
}

func TestVerifier_Verify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"request_id":"req-123","status":"OK"}`)

	t.Run("valid signature passes", func(t *testing.T) {
		v := newTestVerifier([]ed25519.PublicKey{pub}, now)
		headers := signedHeaders(t, priv, body, now)

		if err := v.Verify(context.Background(), headers, body); err != nil {
			t.Errorf("expected valid signature to pass, got %v", err)
		}
	})

	t.Run("tampered body fails", func(t *testing.T) {
		v := newTestVerifier([]ed25519.PublicKey{pub}, now)
		headers := signedHeaders(t, priv, body, now)

		tampered := []byte(`{"request_id":"req-123","status":"FAILED"}`)
		if err := v.Verify(context.Background(), headers, tampered); err == nil {
			t.Error("expected tampered body to fail verification")
		}
	})

	t.Run("wrong key fails", func(t *testing.T) {
		otherPub, _, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		v := newTestVerifier([]ed25519.PublicKey{otherPub}, now)
		headers := signedHeaders(t, priv, body, now)

		if err := v.Verify(context.Background(), headers, body); err == nil {
			t.Error("expected mismatched key to fail verification")
		}
	})

	t.Run("second key in set passes", func(t *testing.T) {
		otherPub, _, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		v := newTestVerifier([]ed25519.PublicKey{otherPub, pub}, now)
		headers := signedHeaders(t, priv, body, now)

		if err := v.Verify(context.Background(), headers, body); err != nil {
			t.Errorf("expected signature to match the second key, got %v", err)
		}
	})

	t.Run("timestamp outside tolerance fails", func(t *testing.T) {
		v := newTestVerifier([]ed25519.PublicKey{pub}, now)
		headers := signedHeaders(t, priv, body, now.Add(-6*time.Minute))

		if err := v.Verify(context.Background(), headers, body); err == nil {
			t.Error("expected stale timestamp to fail verification")
		}
	})

	t.Run("timestamp in future outside tolerance fails", func(t *testing.T) {
		v := newTestVerifier([]ed25519.PublicKey{pub}, now)
		headers := signedHeaders(t, priv, body, now.Add(6*time.Minute))

		if err := v.Verify(context.Background(), headers, body); err == nil {
			t.Error("expected future timestamp to fail verification")
		}
	})

	t.Run("timestamp within tolerance passes", func(t *testing.T) {
		v := newTestVerifier([]ed25519.PublicKey{pub}, now)
		headers := signedHeaders(t, priv, body, now.Add(-4*time.Minute))

		if err := v.Verify(context.Background(), headers, body); err != nil {
			t.Errorf("expected timestamp inside tolerance to pass, got %v", err)
		}
	})

	t.Run("missing headers fail", func(t *testing.T) {
		v := newTestVerifier([]ed25519.PublicKey{pub}, now)

		for _, name := range []string{
			webhook.HeaderRequestID,
			webhook.HeaderUserID,
			webhook.HeaderTimestamp,
			webhook.HeaderSignature,
		} {
			headers := signedHeaders(t, priv, body, now)
			headers.Del(name)
			if err := v.Verify(context.Background(), headers, body); err == nil {
				t.Errorf("expected missing %s to fail verification", name)
			}
		}
	})

	t.Run("malformed signature hex fails", func(t *testing.T) {
		v := newTestVerifier([]ed25519.PublicKey{pub}, now)
		headers := signedHeaders(t, priv, body, now)
		headers.Set(webhook.HeaderSignature, "not-hex")

		if err := v.Verify(context.Background(), headers, body); err == nil {
			t.Error("expected malformed signature to fail verification")
		}
	})

	t.Run("malformed timestamp fails", func(t *testing.T) {
		v := newTestVerifier([]ed25519.PublicKey{pub}, now)
		headers := signedHeaders(t, priv, body, now)
		headers.Set(webhook.HeaderTimestamp, "yesterday")

		if err := v.Verify(context.Background(), headers, body); err == nil {
			t.Error("expected malformed timestamp to fail verification")
		}
	})
}

func TestVerifier_KeyCaching(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	body := []byte(`{}`)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	fetches := 0
	v := webhook.NewVerifier(
		"http://unused.invalid/jwks.json",
		24*time.Hour,
		5*time.Minute,
		nil,
		zerolog.Nop(),
		webhook.WithClock(now),
		webhook.WithKeyFetcher(func(ctx context.Context) ([]ed25519.PublicKey, error) {
			fetches++
			return []ed25519.PublicKey{pub}, nil
		}),
	)

	for i := 0; i < 3; i++ {
		headers := signedHeaders(t, priv, body, current)
		if err := v.Verify(context.Background(), headers, body); err != nil {
			t.Fatalf("verify %d: %v", i, err)
		}
	}
	if fetches != 1 {
		t.Errorf("expected a single JWKS fetch within the cache TTL, got %d", fetches)
	}

	current = current.Add(25 * time.Hour)
	headers := signedHeaders(t, priv, body, current)
	if err := v.Verify(context.Background(), headers, body); err != nil {
		t.Fatalf("verify after TTL: %v", err)
	}
	if fetches != 2 {
		t.Errorf("expected a refetch after the cache TTL, got %d fetches", fetches)
	}
}

func TestVerifier_StaleKeysOnFetchFailure(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	body := []byte(`{}`)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	fetches := 0
	v := webhook.NewVerifier(
		"http://unused.invalid/jwks.json",
		time.Hour,
		5*time.Minute,
		nil,
		zerolog.Nop(),
		webhook.WithClock(now),
		webhook.WithKeyFetcher(func(ctx context.Context) ([]ed25519.PublicKey, error) {
			fetches++
			if fetches > 1 {
				return nil, errors.New("jwks endpoint down")
			}
			return []ed25519.PublicKey{pub}, nil
		}),
	)

	headers := signedHeaders(t, priv, body, current)
	if err := v.Verify(context.Background(), headers, body); err != nil {
		t.Fatalf("initial verify: %v", err)
	}

	// Expire the cache; the refresh fails and the cached keys still serve.
	current = current.Add(2 * time.Hour)
	headers = signedHeaders(t, priv, body, current)
	if err := v.Verify(context.Background(), headers, body); err != nil {
		t.Errorf("expected stale keys to serve during fetch failure, got %v", err)
	}
}

func TestVerifier_FetchFailureWithoutCache(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	body := []byte(`{}`)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	v := webhook.NewVerifier(
		"http://unused.invalid/jwks.json",
		time.Hour,
		5*time.Minute,
		nil,
		zerolog.Nop(),
		webhook.WithClock(func() time.Time { return now }),
		webhook.WithKeyFetcher(func(ctx context.Context) ([]ed25519.PublicKey, error) {
			return nil, fmt.Errorf("jwks endpoint down")
		}),
	)

	headers := signedHeaders(t, priv, body, now)
	if err := v.Verify(context.Background(), headers, body); err == nil {
		t.Error("expected verification to fail when no keys were ever fetched")
	}
}
