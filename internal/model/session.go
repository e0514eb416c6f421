// Package model defines the persisted shapes of the checkout service.
package model

import "time"

// CheckoutSession binds one display surface's checkout to its realtime
// channel.  The channel name is a freshly generated, unguessable,
// address-like identifier; it must drive at most one concurrent scan
// sequence, since events from interleaved scans on the same channel would
// cross-deliver to the wrong display.
//
// Persisting sessions keyed by an opaque id lets the transaction-request
// endpoint look its parameters up server-side instead of trusting the query
// string, which would otherwise be trivially tamperable.
type CheckoutSession struct {
    ID             string    `json:"id"`      // opaque UUID handed to the display
    Channel        string    `json:"channel"` // realtime channel name
    Recipient      string    `json:"recipient"`
    Label          string    `json:"label"`
    Message        string    `json:"message,omitempty"`
    CollectionMint string    `json:"collection_mint,omitempty"` // entry requirement, empty = none
    AmountLamports uint64    `json:"amount_lamports"`
    MarkUsed       bool      `json:"mark_used"` // consume a use of the ticket on entry
    CreatedAt      time.Time `json:"created_at"`
}
