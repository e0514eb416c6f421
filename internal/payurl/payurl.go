// Package payurl encodes Solana Pay request URLs: the payload behind the
// QR code a display surface renders.
package payurl

import (
    "net/url"

    "github.com/shopspring/decimal"
)

// TransferParams are the optional fields of a transfer request URL.
type TransferParams struct {
    Amount    *decimal.Decimal
    SPLToken  string
    Reference string
    Label     string
    Message   string
    Memo      string
}

// EncodeTransfer builds a transfer request URL of the form
// solana:<recipient>?amount=...&spl-token=...&reference=...  Values are
// query-escaped; the recipient address is URL-safe as is.
func EncodeTransfer(recipient string, p TransferParams) string {
    q := url.Values{}
    if p.Amount != nil {
        q.Set("amount", p.Amount.String())
    }
    if p.SPLToken != "" {
        q.Set("spl-token", p.SPLToken)
    }
    if p.Reference != "" {
        q.Set("reference", p.Reference)
    }
    if p.Label != "" {
        q.Set("label", p.Label)
    }
    if p.Message != "" {
        q.Set("message", p.Message)
    }
    if p.Memo != "" {
        q.Set("memo", p.Memo)
    }
    out := "solana:" + recipient
    if enc := q.Encode(); enc != "" {
        out += "?" + enc
    }
    return out
}

// EncodeTransactionRequest builds a transaction request URL: the link the
// wallet will POST to, escaped and prefixed with the solana scheme.
func EncodeTransactionRequest(link string) string {
    return "solana:" + url.QueryEscape(link)
}
