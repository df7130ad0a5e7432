package v1

import (
	"github.com/gin-gonic/gin"

	"mediaforge/services/generation-api/internal/infrastructure/auth"
	"mediaforge/services/generation-api/internal/interfaces/httpserver/handlers"
)

// Routes encapsulates versioned route registration.
type Routes struct {
	handlers *handlers.Provider
	auth     *auth.Validator
}

// NewRoutes builds the v1 route set.
func NewRoutes(provider *handlers.Provider, authValidator *auth.Validator) *Routes {
	return &Routes{handlers: provider, auth: authValidator}
}

// Register attaches all v1 routes under the /v1 prefix. The webhook
// endpoint stays outside the auth middleware: callers authenticate
// with signatures, not user tokens.
func (r *Routes) Register(router gin.IRouter) {
	group := router.Group("/v1")

	group.POST("/webhooks/fal", r.handlers.Webhook.Handle)
	group.OPTIONS("/webhooks/fal", r.handlers.Webhook.HandleOptions)

	generations := group.Group("/generations")
	if r.auth != nil {
		generations.Use(r.auth.Middleware())
	}
	generations.POST("", r.handlers.Generation.Create)
	generations.GET("/:id", r.handlers.Generation.Get)
}
