// Package ledger contains the on-chain side of the checkout flow: querying
// a wallet's token holdings, resolving collection membership through token
// metadata, and composing unsigned transactions for the scanning wallet to
// sign.  All network access goes through the Querier interface so that the
// resolver and composer can be exercised against fakes.
package ledger

import (
    "context"
    "fmt"
    "strconv"

    bin "github.com/gagliardetto/binary"
    "github.com/gagliardetto/solana-go"
    "github.com/gagliardetto/solana-go/programs/token"
    "github.com/gagliardetto/solana-go/rpc"
)

// TokenHolding is one token account owned by a wallet, reduced to the
// fields the resolver cares about.
type TokenHolding struct {
    Address solana.PublicKey // the token account itself
    Mint    solana.PublicKey
    Amount  uint64 // raw amount, in the mint's base units
}

// Querier is the narrow view of the ledger query service used by this
// package.  Implementations must be safe for concurrent use; a single
// instance is shared by every request.
type Querier interface {
    // TokenHoldings lists all token accounts owned by wallet under the SPL
    // token program.
    TokenHoldings(ctx context.Context, wallet solana.PublicKey) ([]TokenHolding, error)

    // TokenAccount fetches and decodes a single token account.
    // Returns ErrAccountNotFound if the account does not exist.
    TokenAccount(ctx context.Context, addr solana.PublicKey) (*token.Account, error)

    // Mint fetches and decodes a mint account.
    Mint(ctx context.Context, addr solana.PublicKey) (*token.Mint, error)

    // TokenSupply reports the raw supply and decimals of a mint.
    TokenSupply(ctx context.Context, mint solana.PublicKey) (amount uint64, decimals uint8, err error)

    // Metadata fetches the metadata record derived from mint.  Returns
    // ErrNoMetadata when the mint carries no metadata account.
    Metadata(ctx context.Context, mint solana.PublicKey) (*Metadata, error)

    // LatestBlockhash returns a recent blockhash to anchor a transaction's
    // validity window.
    LatestBlockhash(ctx context.Context) (solana.Hash, error)
}

// RPCQuerier implements Querier over a solana JSON-RPC client.
type RPCQuerier struct {
    rpc *rpc.Client
}

// NewRPCQuerier wraps an RPC client.  The client is a process-wide handle
// injected at startup; RPCQuerier itself holds no per-request state.
func NewRPCQuerier(c *rpc.Client) *RPCQuerier {
    return &RPCQuerier{rpc: c}
}

func (q *RPCQuerier) TokenHoldings(ctx context.Context, wallet solana.PublicKey) ([]TokenHolding, error) {
    out, err := q.rpc.GetTokenAccountsByOwner(
        ctx,
        wallet,
        &rpc.GetTokenAccountsConfig{ProgramId: solana.TokenProgramID.ToPointer()},
        &rpc.GetTokenAccountsOpts{Encoding: solana.EncodingBase64},
    )
    if err != nil {
        return nil, fmt.Errorf("get token accounts by owner: %w", err)
    }
    holdings := make([]TokenHolding, 0, len(out.Value))
    for _, acc := range out.Value {
        var ta token.Account
        if err := bin.NewBinDecoder(acc.Account.Data.GetBinary()).Decode(&ta); err != nil {
            // Skip accounts under the token program that do not decode as
            // token accounts rather than failing the whole listing.
            continue
        }
        holdings = append(holdings, TokenHolding{
            Address: acc.Pubkey,
            Mint:    ta.Mint,
            Amount:  ta.Amount,
        })
    }
    return holdings, nil
}

func (q *RPCQuerier) TokenAccount(ctx context.Context, addr solana.PublicKey) (*token.Account, error) {
    res, err := q.rpc.GetAccountInfo(ctx, addr)
    if err != nil {
        if err == rpc.ErrNotFound {
            return nil, ErrAccountNotFound
        }
        return nil, fmt.Errorf("get account info: %w", err)
    }
    if res.Value == nil {
        return nil, ErrAccountNotFound
    }
    var ta token.Account
    if err := bin.NewBinDecoder(res.Value.Data.GetBinary()).Decode(&ta); err != nil {
        return nil, fmt.Errorf("decode token account %s: %w", addr, err)
    }
    return &ta, nil
}

func (q *RPCQuerier) Mint(ctx context.Context, addr solana.PublicKey) (*token.Mint, error) {
    res, err := q.rpc.GetAccountInfo(ctx, addr)
    if err != nil {
        if err == rpc.ErrNotFound {
            return nil, ErrAccountNotFound
        }
        return nil, fmt.Errorf("get account info: %w", err)
    }
    if res.Value == nil {
        return nil, ErrAccountNotFound
    }
    var m token.Mint
    if err := bin.NewBinDecoder(res.Value.Data.GetBinary()).Decode(&m); err != nil {
        return nil, fmt.Errorf("decode mint %s: %w", addr, err)
    }
    return &m, nil
}

func (q *RPCQuerier) TokenSupply(ctx context.Context, mint solana.PublicKey) (uint64, uint8, error) {
    res, err := q.rpc.GetTokenSupply(ctx, mint, rpc.CommitmentConfirmed)
    if err != nil {
        return 0, 0, fmt.Errorf("get token supply: %w", err)
    }
    amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
    if err != nil {
        return 0, 0, fmt.Errorf("parse token supply %q: %w", res.Value.Amount, err)
    }
    return amount, res.Value.Decimals, nil
}

func (q *RPCQuerier) Metadata(ctx context.Context, mint solana.PublicKey) (*Metadata, error) {
    addr, err := MetadataAddress(mint)
    if err != nil {
        return nil, fmt.Errorf("derive metadata address: %w", err)
    }
    res, err := q.rpc.GetAccountInfo(ctx, addr)
    if err != nil {
        if err == rpc.ErrNotFound {
            return nil, ErrNoMetadata
        }
        return nil, fmt.Errorf("get metadata account: %w", err)
    }
    if res.Value == nil {
        return nil, ErrNoMetadata
    }
    return DecodeMetadata(res.Value.Data.GetBinary())
}

func (q *RPCQuerier) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
    res, err := q.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
    if err != nil {
        return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
    }
    return res.Value.Blockhash, nil
}
