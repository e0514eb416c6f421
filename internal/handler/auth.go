package handler

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/BlockLive/solana-pay/internal/config"
    "github.com/BlockLive/solana-pay/internal/utils"
)

// AuthHandler issues access tokens to point-of-sale terminals. There is a
// single terminal identity configured through the environment; this is a
// deliberate simplification over a user database, since a deployment runs
// one terminal per till and provisioning happens at install time.
type AuthHandler struct {
    Cfg config.Config
}

func NewAuthHandler(cfg config.Config) *AuthHandler {
    return &AuthHandler{Cfg: cfg}
}

type loginReq struct {
    TerminalID string `json:"terminal_id"`
    Password   string `json:"password"`
}

type tokenPart struct {
    Token   string `json:"token"`
    Expires string `json:"expires"`
}

// Login handles POST /v1/auth/login. On success it returns a short-lived
// JWT the terminal presents when managing checkout sessions.
func (h *AuthHandler) Login(c echo.Context) error {
    if h.Cfg.TerminalPasswordHash == "" {
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "terminal login not configured"})
    }
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.TerminalID = strings.TrimSpace(req.TerminalID)
    if req.TerminalID == "" || req.Password == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "terminal_id/password required"})
    }
    if req.TerminalID != h.Cfg.TerminalID || !utils.VerifyPassword(h.Cfg.TerminalPasswordHash, req.Password) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
    }

    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, req.TerminalID, h.Cfg.AccessTTLMin)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "terminal": req.TerminalID,
        "access":   tokenPart{Token: access.Token, Expires: access.Exp.Format("2006-01-02T15:04:05Z07:00")},
    })
}
