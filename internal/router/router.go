package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4" // import the Echo web framework to handle routing

    "github.com/BlockLive/solana-pay/internal/handler"    // import the handlers that implement business logic
    "github.com/BlockLive/solana-pay/internal/middleware" // import middleware for JWT authentication
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
    e.GET("/healthz", handler.Health)
}

// RegisterCheckout registers the wallet-facing endpoints.  These are public
// by design: the caller is an anonymous scanning wallet.  The provided
// rate-limit middleware caps scan storms per client IP.
func RegisterCheckout(e *echo.Echo, checkout *handler.CheckoutHandler, transfer *handler.TransferHandler, ratelimit echo.MiddlewareFunc) {
    api := e.Group("/api", ratelimit)
    // Wallets fetch label and icon before requesting a transaction.
    api.GET("", checkout.Label)
    // The entry-scan flow: ownership check, compose, publish, return.
    api.POST("", checkout.TransactionRequest)
    // Plain transfer requests with query-string parameters.
    api.POST("/transfer", transfer.Transfer)
}

// RegisterSessions registers terminal login and the session-management
// routes.  Session management requires a valid terminal access token; the
// login endpoint itself is open.
func RegisterSessions(e *echo.Echo, a *handler.AuthHandler, s *handler.SessionHandler, jwtSecret string) {
    e.POST("/v1/auth/login", a.Login)

    v1 := e.Group("/v1")
    v1.Use(middleware.JWTAuth(jwtSecret))
    v1.POST("/sessions", s.Create)
    v1.GET("/sessions/:id", s.Get)
}
