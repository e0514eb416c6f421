package handler

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/gagliardetto/solana-go"
    "github.com/google/uuid"
    "github.com/labstack/echo/v4"

    "github.com/BlockLive/solana-pay/internal/config"
    "github.com/BlockLive/solana-pay/internal/model"
    "github.com/BlockLive/solana-pay/internal/repository"
)

// SessionStore is the narrow view of session persistence the handlers
// need. The MySQL repository implements it; tests fake it in memory.
// Lookups report repository.ErrSessionNotFound for unknown sessions.
type SessionStore interface {
    Create(ctx context.Context, s model.CheckoutSession) error
    GetByID(ctx context.Context, id string) (*model.CheckoutSession, error)
    GetByChannel(ctx context.Context, channel string) (*model.CheckoutSession, error)
}

// SessionHandler manages persisted checkout sessions. A terminal creates a
// session before rendering the payment request; the scan endpoint then
// resolves its parameters from the store by opaque id instead of trusting
// the query string. These routes sit behind terminal JWT auth.
type SessionHandler struct {
    Cfg      config.Config
    Sessions SessionStore
}

func NewSessionHandler(cfg config.Config, sessions SessionStore) *SessionHandler {
    return &SessionHandler{Cfg: cfg, Sessions: sessions}
}

type createSessionReq struct {
    Recipient      string `json:"recipient"`       // defaults to the merchant wallet
    Label          string `json:"label"`           // required
    Message        string `json:"message"`         //
    CollectionMint string `json:"collection_mint"` // entry requirement, empty = config default
    AmountLamports uint64 `json:"amount_lamports"` // 0 = config default
    MarkUsed       bool   `json:"mark_used"`       // consume a ticket use on entry
}

// Create handles POST /v1/sessions. It mints an opaque session id and a
// fresh, unguessable, address-shaped channel name, persists the binding,
// and returns it. The channel name is generated the same way the display
// surface used to generate it client-side: a throwaway keypair's public
// key.
func (h *SessionHandler) Create(c echo.Context) error {
    if h.Sessions == nil {
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "session store not configured"})
    }
    var req createSessionReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if req.Label == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "label is required"})
    }
    recipient := req.Recipient
    if recipient == "" {
        recipient = h.Cfg.MerchantWallet
    }
    if _, err := solana.PublicKeyFromBase58(recipient); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid recipient"})
    }
    if req.CollectionMint != "" {
        if _, err := solana.PublicKeyFromBase58(req.CollectionMint); err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid collection_mint"})
        }
    }
    amount := req.AmountLamports
    if amount == 0 {
        amount = h.Cfg.CheckoutLamports
    }
    collection := req.CollectionMint
    if collection == "" {
        collection = h.Cfg.TicketCollectionMint
    }

    s := model.CheckoutSession{
        ID:             uuid.NewString(),
        Channel:        solana.NewWallet().PublicKey().String(),
        Recipient:      recipient,
        Label:          req.Label,
        Message:        req.Message,
        CollectionMint: collection,
        AmountLamports: amount,
        MarkUsed:       req.MarkUsed,
        CreatedAt:      time.Now().UTC(),
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    if err := h.Sessions.Create(ctx, s); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create session failed"})
    }
    return c.JSON(http.StatusCreated, s)
}

// Get handles GET /v1/sessions/:id.
func (h *SessionHandler) Get(c echo.Context) error {
    if h.Sessions == nil {
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "session store not configured"})
    }
    id := c.Param("id")
    if id == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing session id"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    s, err := h.Sessions.GetByID(ctx, id)
    if err != nil {
        if errors.Is(err, repository.ErrSessionNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, s)
}
