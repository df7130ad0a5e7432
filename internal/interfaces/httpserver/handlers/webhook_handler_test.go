package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"mediaforge/services/generation-api/internal/config"
	"mediaforge/services/generation-api/internal/domain/falerrors"
	"mediaforge/services/generation-api/internal/domain/generation"
	"mediaforge/services/generation-api/internal/domain/webhook"
	"mediaforge/services/generation-api/internal/interfaces/httpserver/handlers"
	"mediaforge/services/generation-api/internal/interfaces/httpserver/responses"
	"mediaforge/services/generation-api/internal/utils/platformerrors"
)

type mockReconciler struct {
	ReconcileFunc            func(ctx context.Context, env *webhook.Envelope) (*webhook.Result, error)
	HandleFFmpegCallbackFunc func(ctx context.Context, cb *webhook.FFmpegCallback) error
}

func (m *mockReconciler) Reconcile(ctx context.Context, env *webhook.Envelope) (*webhook.Result, error) {
	if m.ReconcileFunc != nil {
		return m.ReconcileFunc(ctx, env)
	}
	return &webhook.Result{Action: webhook.ActionCompleted}, nil
}

func (m *mockReconciler) HandleFFmpegCallback(ctx context.Context, cb *webhook.FFmpegCallback) error {
	if m.HandleFFmpegCallbackFunc != nil {
		return m.HandleFFmpegCallbackFunc(ctx, cb)
	}
	return nil
}

type mockVerifier struct {
	VerifyFunc func(ctx context.Context, headers http.Header, body []byte) error
}

func (m *mockVerifier) Verify(ctx context.Context, headers http.Header, body []byte) error {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, headers, body)
	}
	return nil
}

type mockFinder struct {
	FindByRequestIDFunc func(ctx context.Context, requestID string) (*generation.Generation, error)
}

func (m *mockFinder) FindByRequestID(ctx context.Context, requestID string) (*generation.Generation, error) {
	if m.FindByRequestIDFunc != nil {
		return m.FindByRequestIDFunc(ctx, requestID)
	}
	return nil, nil
}

func newWebhookRouter(cfg *config.Config, verifier *mockVerifier, reconciler *mockReconciler, finder *mockFinder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := handlers.NewWebhookHandler(cfg, verifier, reconciler, finder, zerolog.Nop())
	router := gin.New()
	router.POST("/v1/webhooks/fal", h.Handle)
	router.OPTIONS("/v1/webhooks/fal", h.HandleOptions)
	return router
}

func providerRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/fal", bytes.NewBufferString(body))
	req.Header.Set(webhook.HeaderRequestID, "req-1")
	req.Header.Set(webhook.HeaderUserID, "fal-user")
	req.Header.Set(webhook.HeaderTimestamp, "1750000000")
	req.Header.Set(webhook.HeaderSignature, "deadbeef")
	return req
}

func TestWebhookHandler_ProviderCompleted(t *testing.T) {
	verified := false
	verifier := &mockVerifier{
		VerifyFunc: func(ctx context.Context, headers http.Header, body []byte) error {
			verified = true
			return nil
		},
	}
	reconciler := &mockReconciler{
		ReconcileFunc: func(ctx context.Context, env *webhook.Envelope) (*webhook.Result, error) {
			if env.RequestID != "req-1" {
				t.Errorf("envelope request id = %q", env.RequestID)
			}
			return &webhook.Result{GenerationID: "gen_1", Action: webhook.ActionCompleted}, nil
		},
	}

	router := newWebhookRouter(&config.Config{}, verifier, reconciler, &mockFinder{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, providerRequest(`{"request_id":"req-1","status":"OK","payload":{"url":"https://x/v.mp4"}}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !verified {
		t.Error("signature should have been verified")
	}

	var ack responses.WebhookAck
	if err := json.Unmarshal(w.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if !ack.Success || ack.Message != "Generation completed" || ack.GenerationID != "gen_1" {
		t.Errorf("ack = %+v", ack)
	}
}

func TestWebhookHandler_InvalidSignature(t *testing.T) {
	verifier := &mockVerifier{
		VerifyFunc: func(ctx context.Context, headers http.Header, body []byte) error {
			return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, "bad signature", nil, "test")
		},
	}
	reconciler := &mockReconciler{
		ReconcileFunc: func(ctx context.Context, env *webhook.Envelope) (*webhook.Result, error) {
			t.Error("an unverified webhook must not be reconciled")
			return nil, nil
		},
	}

	router := newWebhookRouter(&config.Config{}, verifier, reconciler, &mockFinder{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, providerRequest(`{"request_id":"req-1","status":"OK"}`))

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestWebhookHandler_SignatureBypassForExemptModel(t *testing.T) {
	cfg := &config.Config{SignatureBypassList: []string{"fal-ai/flux-kontext/dev"}}

	verifier := &mockVerifier{
		VerifyFunc: func(ctx context.Context, headers http.Header, body []byte) error {
			t.Error("exempt models must skip verification")
			return nil
		},
	}
	finder := &mockFinder{
		FindByRequestIDFunc: func(ctx context.Context, requestID string) (*generation.Generation, error) {
			return &generation.Generation{
				ID:       "gen_1",
				Metadata: generation.Metadata{Model: "fal-ai/flux-kontext/dev"},
			}, nil
		},
	}
	reconciler := &mockReconciler{
		ReconcileFunc: func(ctx context.Context, env *webhook.Envelope) (*webhook.Result, error) {
			return &webhook.Result{GenerationID: "gen_1", Action: webhook.ActionCompleted}, nil
		},
	}

	router := newWebhookRouter(cfg, verifier, reconciler, finder)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, providerRequest(`{"request_id":"req-1","status":"OK"}`))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestWebhookHandler_NonExemptModelStillVerified(t *testing.T) {
	cfg := &config.Config{SignatureBypassList: []string{"fal-ai/flux-kontext/dev"}}

	verifier := &mockVerifier{
		VerifyFunc: func(ctx context.Context, headers http.Header, body []byte) error {
			return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, "bad signature", nil, "test")
		},
	}
	finder := &mockFinder{
		FindByRequestIDFunc: func(ctx context.Context, requestID string) (*generation.Generation, error) {
			return &generation.Generation{
				ID:       "gen_1",
				Metadata: generation.Metadata{Model: "wan-pro"},
			}, nil
		},
	}

	router := newWebhookRouter(cfg, verifier, &mockReconciler{}, finder)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, providerRequest(`{"request_id":"req-1","status":"OK"}`))

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestWebhookHandler_UnknownGenerationIs404(t *testing.T) {
	reconciler := &mockReconciler{
		ReconcileFunc: func(ctx context.Context, env *webhook.Envelope) (*webhook.Result, error) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
				"no processing generation for webhook request id", nil, "test")
		},
	}

	router := newWebhookRouter(&config.Config{}, &mockVerifier{}, reconciler, &mockFinder{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, providerRequest(`{"request_id":"req-unknown","status":"OK"}`))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestWebhookHandler_MalformedProviderBody(t *testing.T) {
	router := newWebhookRouter(&config.Config{}, &mockVerifier{}, &mockReconciler{}, &mockFinder{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, providerRequest(`{not json`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestWebhookHandler_FailureAckCarriesClassification(t *testing.T) {
	reconciler := &mockReconciler{
		ReconcileFunc: func(ctx context.Context, env *webhook.Envelope) (*webhook.Result, error) {
			return &webhook.Result{
				GenerationID: "gen_1",
				Action:       webhook.ActionFailed,
				ErrorType:    falerrors.TypeContentViolation,
				ErrorCode:    422,
			}, nil
		},
	}

	router := newWebhookRouter(&config.Config{}, &mockVerifier{}, reconciler, &mockFinder{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, providerRequest(`{"request_id":"req-1","status":"ERROR"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var ack responses.WebhookAck
	if err := json.Unmarshal(w.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.ErrorType != "content_violation" || ack.ErrorCode != 422 {
		t.Errorf("ack = %+v", ack)
	}
}

func TestWebhookHandler_FFmpegCallbackRouting(t *testing.T) {
	var handled *webhook.FFmpegCallback
	reconciler := &mockReconciler{
		ReconcileFunc: func(ctx context.Context, env *webhook.Envelope) (*webhook.Result, error) {
			t.Error("a request without provider headers must not hit the provider path")
			return nil, nil
		},
		HandleFFmpegCallbackFunc: func(ctx context.Context, cb *webhook.FFmpegCallback) error {
			handled = cb
			return nil
		},
	}

	router := newWebhookRouter(&config.Config{}, &mockVerifier{}, reconciler, &mockFinder{})
	w := httptest.NewRecorder()
	// No signature headers: this is an FFmpeg callback.
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/fal",
		bytes.NewBufferString(`{"generation_id":"gen_1","status":"completed","thumbnail_url":"https://x/t.jpg"}`))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if handled == nil || handled.GenerationID != "gen_1" || handled.ThumbnailURL != "https://x/t.jpg" {
		t.Errorf("callback = %+v", handled)
	}
}

func TestWebhookHandler_PartialProviderHeadersFallToFFmpeg(t *testing.T) {
	called := false
	reconciler := &mockReconciler{
		HandleFFmpegCallbackFunc: func(ctx context.Context, cb *webhook.FFmpegCallback) error {
			called = true
			return nil
		},
	}

	router := newWebhookRouter(&config.Config{}, &mockVerifier{}, reconciler, &mockFinder{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/fal",
		bytes.NewBufferString(`{"generation_id":"gen_1","status":"failed","error":"boom"}`))
	// Only one of the four signature headers.
	req.Header.Set(webhook.HeaderRequestID, "req-1")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !called {
		t.Error("partial headers should route to the FFmpeg path")
	}
}

func TestWebhookHandler_Options(t *testing.T) {
	router := newWebhookRouter(&config.Config{}, &mockVerifier{}, &mockReconciler{}, &mockFinder{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/v1/webhooks/fal", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("preflight should set CORS headers")
	}
}
