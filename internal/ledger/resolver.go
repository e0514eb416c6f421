package ledger

import (
    "context"
    "log"
    "sort"

    "github.com/gagliardetto/solana-go"
)

// Ownership is the outcome of a collection-membership check.  HoldingMint
// is only meaningful when Holds is true.
type Ownership struct {
    Holds       bool
    HoldingMint solana.PublicKey
}

// Resolver determines whether a wallet currently holds at least one token
// belonging to a collection.  It enumerates the wallet's token accounts,
// keeps the non-fungible ones (supply of exactly 1, zero decimals) and
// cross-references each candidate's metadata record against the collection
// mint.
type Resolver struct {
    q Querier
}

func NewResolver(q Querier) *Resolver {
    return &Resolver{q: q}
}

// Resolve reports whether wallet holds a token of collection.  Per-candidate
// lookup failures are swallowed: a wallet routinely holds tokens without
// metadata and those must not fail the whole check.  Only the initial
// holdings listing can fail the call.
//
// When several tokens of the collection are held, the lexicographically
// lowest mint wins, so the choice is stable across the unordered listing
// returned by the ledger.
func (r *Resolver) Resolve(ctx context.Context, collection, wallet solana.PublicKey) (Ownership, error) {
    holdings, err := r.q.TokenHoldings(ctx, wallet)
    if err != nil {
        return Ownership{}, err
    }

    var matches []solana.PublicKey
    for _, h := range holdings {
        if h.Amount != 1 {
            continue
        }
        supply, decimals, err := r.q.TokenSupply(ctx, h.Mint)
        if err != nil || supply != 1 || decimals != 0 {
            continue // fungible, or supply unknown: not an entry candidate
        }
        md, err := r.q.Metadata(ctx, h.Mint)
        if err != nil {
            if err != ErrNoMetadata {
                log.Printf("resolver: metadata lookup for %s failed: %v", h.Mint, err)
            }
            continue
        }
        if md.Collection == nil || !md.Collection.Key.Equals(collection) {
            continue
        }
        matches = append(matches, h.Mint)
    }

    if len(matches) == 0 {
        return Ownership{}, nil
    }
    sort.Slice(matches, func(i, j int) bool {
        return matches[i].String() < matches[j].String()
    })
    return Ownership{Holds: true, HoldingMint: matches[0]}, nil
}
