package handler

import (
    "encoding/base64"
    "errors"
    "log"
    "net/http"

    "github.com/gagliardetto/solana-go"
    "github.com/labstack/echo/v4"
    "github.com/shopspring/decimal"

    "github.com/BlockLive/solana-pay/internal/ledger"
)

// solDecimals is the decimal exponent between SOL and lamports: one SOL is
// 10^9 lamports.
const solDecimals = 9

// TransferHandler serves POST /api/transfer: a transfer request whose
// parameters arrive in the query string. In practice these should be
// generated server-side and persisted under an opaque session id (see the
// /v1/sessions endpoints); the query-string form is kept for wallets and
// integrations that predate sessions.
type TransferHandler struct {
    Composer *ledger.Composer
}

func NewTransferHandler(c *ledger.Composer) *TransferHandler {
    return &TransferHandler{Composer: c}
}

// Transfer validates the request, composes a native or SPL token transfer
// for the scanning wallet, and returns it serialized. Validation failures
// map to 400 with a short reason; composition failures that indicate a bad
// request (missing accounts, insufficient funds, frozen accounts) also map
// to 400, and anything else is a logged 500.
func (h *TransferHandler) Transfer(c echo.Context) error {
    recipientParam := c.QueryParam("recipient")
    if recipientParam == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing recipient"})
    }
    recipient, err := solana.PublicKeyFromBase58(recipientParam)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid recipient"})
    }

    amountParam := c.QueryParam("amount")
    if amountParam == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing amount"})
    }
    amount, err := decimal.NewFromString(amountParam)
    if err != nil || amount.IsNegative() {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid amount"})
    }

    var splToken *solana.PublicKey
    if tokenParam := c.QueryParam("spl-token"); tokenParam != "" {
        mint, err := solana.PublicKeyFromBase58(tokenParam)
        if err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid spl-token"})
        }
        splToken = &mint
    }

    referenceParam := c.QueryParam("reference")
    if referenceParam == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing reference"})
    }
    reference, err := solana.PublicKeyFromBase58(referenceParam)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reference"})
    }

    memo := c.QueryParam("memo")
    message := c.QueryParam("message")

    var body struct {
        Account string `json:"account"`
    }
    if err := c.Bind(&body); err != nil || body.Account == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing account"})
    }
    account, err := solana.PublicKeyFromBase58(body.Account)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid account"})
    }

    ctx := c.Request().Context()
    var tx *solana.Transaction
    if splToken != nil {
        tx, err = h.Composer.TokenTransfer(ctx, ledger.TokenTransferParams{
            Sender:    account,
            Recipient: recipient,
            Mint:      *splToken,
            Amount:    amount,
            Reference: &reference,
            Memo:      memo,
        })
    } else {
        lamports := amount.Shift(solDecimals).Floor().BigInt()
        if !lamports.IsUint64() {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid amount"})
        }
        tx, err = h.Composer.ValueTransfer(ctx, ledger.ValueTransferParams{
            Sender:    account,
            Recipient: recipient,
            Lamports:  lamports.Uint64(),
            Reference: &reference,
            Memo:      memo,
        })
    }
    if err != nil {
        if status, msg := classifyComposeError(err); status != 0 {
            return c.JSON(status, echo.Map{"error": msg})
        }
        log.Printf("transfer: compose for %s failed: %v", account, err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load data"})
    }

    raw, err := tx.MarshalBinary()
    if err != nil {
        log.Printf("transfer: serialize for %s failed: %v", account, err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load data"})
    }
    resp := echo.Map{"transaction": base64.StdEncoding.EncodeToString(raw)}
    if message != "" {
        resp["message"] = message
    }
    return c.JSON(http.StatusOK, resp)
}

// classifyComposeError maps the composer's sentinel errors onto client
// errors. A zero status means the error is a server fault.
func classifyComposeError(err error) (int, string) {
    switch {
    case errors.Is(err, ledger.ErrAccountNotFound):
        return http.StatusBadRequest, "account not found"
    case errors.Is(err, ledger.ErrAccountNotInitialized):
        return http.StatusBadRequest, "account not initialized"
    case errors.Is(err, ledger.ErrAccountFrozen):
        return http.StatusBadRequest, "account frozen"
    case errors.Is(err, ledger.ErrMintNotInitialized):
        return http.StatusBadRequest, "mint not initialized"
    case errors.Is(err, ledger.ErrInsufficientFunds):
        return http.StatusBadRequest, "insufficient funds"
    case errors.Is(err, ledger.ErrNoUsesRemaining):
        return http.StatusBadRequest, "no uses remaining"
    }
    return 0, ""
}
