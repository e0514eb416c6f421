package handler

import (
    "context"        // context for downstream ledger and broker calls
    "encoding/base64" // transactions travel to the wallet as base64
    "errors"         // errors.Is comparisons against ledger sentinels
    "fmt"            // icon URL construction
    "log"            // internal causes are logged, never leaked
    "net/http"       // HTTP status codes
    "time"           // audit timestamps

    "github.com/gagliardetto/solana-go"
    "github.com/labstack/echo/v4"

    "github.com/BlockLive/solana-pay/internal/config"
    "github.com/BlockLive/solana-pay/internal/ledger"
    "github.com/BlockLive/solana-pay/internal/model"
    "github.com/BlockLive/solana-pay/internal/notify"
    "github.com/BlockLive/solana-pay/internal/queue"
    "github.com/BlockLive/solana-pay/internal/repository"
)

// AuditFunc publishes an entry-scan audit event.  Failures are the
// publisher's problem; the checkout flow never waits on or reacts to them.
type AuditFunc func(ctx context.Context, ev queue.EntryScanEvent) error

// CheckoutHandler serves the wallet-facing transaction request endpoint.
// It orchestrates one scan: validate the request, resolve ticket ownership,
// compose an unsigned transaction, and publish scan status to the session's
// realtime channel.  All dependencies are injected; the handler holds no
// per-request state, so concurrent scans on different channels are fully
// independent.
type CheckoutHandler struct {
    Cfg      config.Config
    Resolver *ledger.Resolver
    Composer *ledger.Composer
    Notifier notify.Publisher
    Sessions SessionStore // nil when session persistence is disabled
    Audit    AuditFunc    // nil disables audit events

    merchant   solana.PublicKey
    collection *solana.PublicKey // configured default, may be nil
}

// NewCheckoutHandler parses the configured addresses once so a bad merchant
// wallet fails at startup instead of on the first scan.
func NewCheckoutHandler(cfg config.Config, r *ledger.Resolver, comp *ledger.Composer, n notify.Publisher, sessions SessionStore, audit AuditFunc) (*CheckoutHandler, error) {
    merchant, err := solana.PublicKeyFromBase58(cfg.MerchantWallet)
    if err != nil {
        return nil, fmt.Errorf("parse merchant wallet: %w", err)
    }
    h := &CheckoutHandler{
        Cfg:      cfg,
        Resolver: r,
        Composer: comp,
        Notifier: n,
        Sessions: sessions,
        Audit:    audit,
        merchant: merchant,
    }
    if cfg.TicketCollectionMint != "" {
        col, err := solana.PublicKeyFromBase58(cfg.TicketCollectionMint)
        if err != nil {
            return nil, fmt.Errorf("parse ticket collection mint: %w", err)
        }
        h.collection = &col
    }
    return h, nil
}

// Label handles GET /api.  It returns the metadata a wallet renders before
// requesting a transaction: the checkout label and the merchant icon.
func (h *CheckoutHandler) Label(c echo.Context) error {
    label := c.QueryParam("label")
    if label == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing label"})
    }
    icon := fmt.Sprintf("https://%s/solana-pay-logo.svg", c.Request().Host)
    return c.JSON(http.StatusOK, echo.Map{
        "label": label,
        "icon":  icon,
    })
}

// scanParams is the resolved set of parameters for one scan, after session
// lookup and config defaults have been applied.
type scanParams struct {
    channel    string
    collection solana.PublicKey
    recipient  solana.PublicKey
    lamports   uint64
    message    string
    markUsed   bool
}

// TransactionRequest handles POST /api, the scan flow:
//
//  1. validate the request; pure input failures return immediately and
//     publish nothing,
//  2. resolve ticket ownership and publish {hasNft} on every exit path of
//     the step, with internal failures downgraded to hasNft=false,
//  3. compose the transaction and publish {hasNft, utilizeReady} on every
//     exit path, so the display always learns the final readiness state,
//  4. return the serialized transaction, or a generic 500 whose cause is
//     only logged.
//
// Composition is not gated on ownership: the ownership indicator and the
// payment transaction are independent signals.
func (h *CheckoutHandler) TransactionRequest(c echo.Context) error {
    ctx := c.Request().Context()

    var body struct {
        Account string `json:"account"`
    }
    if err := c.Bind(&body); err != nil || body.Account == "" {
        log.Printf("checkout: missing account in transaction request")
        return failedToLoad(c)
    }
    sender, err := solana.PublicKeyFromBase58(body.Account)
    if err != nil {
        log.Printf("checkout: invalid account %q: %v", body.Account, err)
        return failedToLoad(c)
    }

    params, err := h.resolveParams(ctx, c)
    if err != nil {
        log.Printf("checkout: %v", err)
        return failedToLoad(c)
    }

    // Step 2: ownership check. The {hasNft} publish is guaranteed whatever
    // the resolver does; a lookup failure counts as "does not hold".
    hasNft := false
    var holdingMint solana.PublicKey
    func() {
        defer func() {
            h.publish(ctx, params.channel, notify.ScanStatus{HasNFT: hasNft})
        }()
        own, err := h.Resolver.Resolve(ctx, params.collection, sender)
        if err != nil {
            log.Printf("checkout: ownership resolution for %s failed: %v", sender, err)
            return
        }
        hasNft = own.Holds
        holdingMint = own.HoldingMint
    }()

    // Step 3: composition, with the readiness publish equally guaranteed.
    var tx *solana.Transaction
    var composeErr error
    func() {
        ready := false
        defer func() {
            h.publish(ctx, params.channel, notify.ScanStatus{HasNFT: hasNft, UtilizeReady: &ready})
        }()
        if params.markUsed && hasNft {
            tx, composeErr = h.Composer.MarkTokenUsed(ctx, ledger.MarkTokenUsedParams{
                Mint:  holdingMint,
                Owner: sender,
            })
        } else {
            tx, composeErr = h.Composer.ValueTransfer(ctx, ledger.ValueTransferParams{
                Sender:    sender,
                Recipient: params.recipient,
                Lamports:  params.lamports,
            })
        }
        ready = composeErr == nil
    }()

    if h.Audit != nil {
        ev := queue.EntryScanEvent{
            Channel:          params.channel,
            Account:          sender.String(),
            CollectionMint:   params.collection.String(),
            HasNFT:           hasNft,
            TransactionReady: composeErr == nil,
            MarkUsed:         params.markUsed && hasNft,
            ScannedAt:        time.Now().UTC().Format(time.RFC3339),
        }
        // Fire and forget; the request context may be gone by the time the
        // broker answers.
        go func() { _ = h.Audit(context.Background(), ev) }()
    }

    if composeErr != nil {
        log.Printf("checkout: compose for %s failed: %v", sender, composeErr)
        return failedToLoad(c)
    }

    raw, err := tx.MarshalBinary()
    if err != nil {
        log.Printf("checkout: serialize for %s failed: %v", sender, err)
        return failedToLoad(c)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "transaction": base64.StdEncoding.EncodeToString(raw),
        "message":     params.message,
    })
}

// resolveParams validates the query parameters and applies session and
// config defaults. Persisted session parameters, looked up by opaque id or
// by channel name, override the tamperable query string.
func (h *CheckoutHandler) resolveParams(ctx context.Context, c echo.Context) (scanParams, error) {
    params := scanParams{
        channel:   c.QueryParam("channel"),
        recipient: h.merchant,
        lamports:  h.Cfg.CheckoutLamports,
        message:   h.Cfg.CheckoutMessage,
        markUsed:  c.QueryParam("markUsed") == "true",
    }

    collectionParam := c.QueryParam("ticketCollectionMintId")

    switch sid := c.QueryParam("session"); {
    case sid != "" && h.Sessions != nil:
        s, err := h.Sessions.GetByID(ctx, sid)
        if err != nil {
            if errors.Is(err, repository.ErrSessionNotFound) {
                return scanParams{}, fmt.Errorf("unknown session %q", sid)
            }
            return scanParams{}, fmt.Errorf("load session %q: %w", sid, err)
        }
        if err := applySession(&params, &collectionParam, s); err != nil {
            return scanParams{}, err
        }
    case params.channel != "" && h.Sessions != nil:
        // A session bound to this channel is authoritative; the query
        // string cannot downgrade a mark-used checkout to a plain one.
        s, err := h.Sessions.GetByChannel(ctx, params.channel)
        if err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
            return scanParams{}, fmt.Errorf("load session for channel %q: %w", params.channel, err)
        }
        if s != nil {
            if err := applySession(&params, &collectionParam, s); err != nil {
                return scanParams{}, err
            }
        }
    }

    if params.channel == "" {
        return scanParams{}, errors.New("missing channel")
    }

    switch {
    case collectionParam != "":
        col, err := solana.PublicKeyFromBase58(collectionParam)
        if err != nil {
            return scanParams{}, fmt.Errorf("invalid ticketCollectionMintId %q: %w", collectionParam, err)
        }
        params.collection = col
    case h.collection != nil:
        params.collection = *h.collection
    default:
        return scanParams{}, errors.New("missing ticketCollectionMintId")
    }
    return params, nil
}

// applySession copies a persisted session's checkout parameters over the
// query-string defaults.
func applySession(params *scanParams, collectionParam *string, s *model.CheckoutSession) error {
    params.channel = s.Channel
    params.lamports = s.AmountLamports
    params.markUsed = s.MarkUsed
    if s.Message != "" {
        params.message = s.Message
    }
    if s.Recipient != "" {
        recipient, err := solana.PublicKeyFromBase58(s.Recipient)
        if err != nil {
            return fmt.Errorf("session %q recipient: %w", s.ID, err)
        }
        params.recipient = recipient
    }
    if s.CollectionMint != "" {
        *collectionParam = s.CollectionMint
    }
    return nil
}

// publish sends one scan-status event. Best effort: failures are logged
// and never surfaced to the wallet.
func (h *CheckoutHandler) publish(ctx context.Context, channel string, st notify.ScanStatus) {
    if err := h.Notifier.Publish(ctx, channel, notify.EventEntryScan, st); err != nil {
        log.Printf("checkout: publish to channel %s failed: %v", channel, err)
    }
}

// failedToLoad is the single generic failure response of the scan flow.
// Wallets show its error string verbatim, so it stays stable and vague.
func failedToLoad(c echo.Context) error {
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load data"})
}
