package ledger

import (
    "context"
    "encoding/binary"
    "fmt"

    bin "github.com/gagliardetto/binary"
    "github.com/gagliardetto/solana-go"
    "github.com/gagliardetto/solana-go/programs/system"
    "github.com/gagliardetto/solana-go/programs/token"
    "github.com/shopspring/decimal"
)

// utilizeInstruction is the metadata program's "consume one use"
// instruction discriminant.
const utilizeInstruction = 19

// Composer builds unsigned transactions addressed to a scanning wallet.
// The returned transactions carry a recent blockhash and a fee payer but no
// signatures; the wallet signs and submits them through its own RPC
// connection.
type Composer struct {
    q Querier

    // feePayer, when set, funds mark-token-used transactions instead of the
    // scanning wallet.
    feePayer *solana.PublicKey
}

func NewComposer(q Querier) *Composer {
    return &Composer{q: q}
}

// WithFeePayer configures a central fee payer for the mark-token-used path.
func (c *Composer) WithFeePayer(pk solana.PublicKey) *Composer {
    c.feePayer = &pk
    return c
}

// ValueTransferParams describes a native-currency transfer.  Lamports is
// always determined by the server; client-supplied amounts are never
// trusted for value transfers.
type ValueTransferParams struct {
    Sender    solana.PublicKey
    Recipient solana.PublicKey
    Lamports  uint64
    Reference *solana.PublicKey // optional correlation key
    Memo      string            // optional memo instruction
}

// ValueTransfer composes a single native transfer from sender to recipient.
func (c *Composer) ValueTransfer(ctx context.Context, p ValueTransferParams) (*solana.Transaction, error) {
    ix := system.NewTransferInstruction(p.Lamports, p.Sender, p.Recipient).Build()
    instrs := withExtras(ix, p.Reference, p.Memo)
    return c.finalize(ctx, p.Sender, instrs)
}

// TokenTransferParams describes an SPL token transfer.  Amount is in whole
// tokens; it is scaled by the mint's decimals before composing.
type TokenTransferParams struct {
    Sender    solana.PublicKey
    Recipient solana.PublicKey
    Mint      solana.PublicKey
    Amount    decimal.Decimal
    Reference *solana.PublicKey // generated fresh when nil
    Memo      string
}

// TokenTransfer composes a checked SPL token transfer between the sender's
// and recipient's associated token accounts.  Both accounts must exist, be
// initialized and not be frozen; the mint must be initialized; the sender's
// balance must cover the amount.  A single-use reference key is attached to
// the instruction's account list so the submitted transaction can be found
// on chain later.
func (c *Composer) TokenTransfer(ctx context.Context, p TokenTransferParams) (*solana.Transaction, error) {
    senderATA, err := AssociatedTokenAddress(p.Sender, p.Mint)
    if err != nil {
        return nil, fmt.Errorf("derive sender token account: %w", err)
    }
    senderAccount, err := c.q.TokenAccount(ctx, senderATA)
    if err != nil {
        return nil, fmt.Errorf("sender token account: %w", err)
    }
    if err := checkSpendable(senderAccount); err != nil {
        return nil, fmt.Errorf("sender: %w", err)
    }

    recipientATA, err := AssociatedTokenAddress(p.Recipient, p.Mint)
    if err != nil {
        return nil, fmt.Errorf("derive recipient token account: %w", err)
    }
    recipientAccount, err := c.q.TokenAccount(ctx, recipientATA)
    if err != nil {
        return nil, fmt.Errorf("recipient token account: %w", err)
    }
    if err := checkSpendable(recipientAccount); err != nil {
        return nil, fmt.Errorf("recipient: %w", err)
    }

    mint, err := c.q.Mint(ctx, p.Mint)
    if err != nil {
        return nil, fmt.Errorf("mint: %w", err)
    }
    if !mint.IsInitialized {
        return nil, ErrMintNotInitialized
    }

    units, err := baseUnits(p.Amount, mint.Decimals)
    if err != nil {
        return nil, err
    }
    if units > senderAccount.Amount {
        return nil, ErrInsufficientFunds
    }

    ix := token.NewTransferCheckedInstruction(
        units,
        mint.Decimals,
        senderATA,
        p.Mint,
        recipientATA,
        p.Sender,
        nil,
    ).Build()

    reference := p.Reference
    if reference == nil {
        ref := solana.NewWallet().PublicKey()
        reference = &ref
    }
    instrs := withExtras(ix, reference, p.Memo)
    return c.finalize(ctx, p.Sender, instrs)
}

// MarkTokenUsedParams identifies the ticket token to consume a use from.
type MarkTokenUsedParams struct {
    Mint  solana.PublicKey
    Owner solana.PublicKey
}

// MarkTokenUsed composes a transaction that consumes one use of the owner's
// ticket token, built against the token's metadata record and the owner's
// associated token account.  When a central fee payer is configured it
// funds the transaction; otherwise the owner does.
func (c *Composer) MarkTokenUsed(ctx context.Context, p MarkTokenUsedParams) (*solana.Transaction, error) {
    md, err := c.q.Metadata(ctx, p.Mint)
    if err != nil {
        return nil, fmt.Errorf("metadata: %w", err)
    }
    if md.Uses != nil && md.Uses.Remaining == 0 {
        return nil, ErrNoUsesRemaining
    }

    metadataAddr, err := MetadataAddress(p.Mint)
    if err != nil {
        return nil, fmt.Errorf("derive metadata address: %w", err)
    }
    ata, err := AssociatedTokenAddress(p.Owner, p.Mint)
    if err != nil {
        return nil, fmt.Errorf("derive token account: %w", err)
    }

    data := make([]byte, 9)
    data[0] = utilizeInstruction
    binary.LittleEndian.PutUint64(data[1:], 1) // number of uses to consume

    ix := solana.NewInstruction(
        MetadataProgramID,
        solana.AccountMetaSlice{
            solana.Meta(metadataAddr).WRITE(),
            solana.Meta(ata).WRITE(),
            solana.Meta(p.Mint).WRITE(),
            solana.Meta(p.Owner).SIGNER().WRITE(),
            solana.Meta(solana.TokenProgramID),
            solana.Meta(solana.SPLAssociatedTokenAccountProgramID),
            solana.Meta(solana.SystemProgramID),
            solana.Meta(solana.SysVarRentPubkey),
        },
        data,
    )

    payer := p.Owner
    if c.feePayer != nil {
        payer = *c.feePayer
    }
    return c.finalize(ctx, payer, []solana.Instruction{ix})
}

// checkSpendable verifies a token account can take part in a transfer.
func checkSpendable(acc *token.Account) error {
    if acc.State == token.Uninitialized {
        return ErrAccountNotInitialized
    }
    if acc.State == token.Frozen {
        return ErrAccountFrozen
    }
    return nil
}

// baseUnits scales a whole-token amount by the mint's decimals, flooring
// any excess precision.
func baseUnits(amount decimal.Decimal, decimals uint8) (uint64, error) {
    if amount.IsNegative() {
        return 0, fmt.Errorf("negative amount %s", amount)
    }
    scaled := amount.Shift(int32(decimals)).Floor()
    bi := scaled.BigInt()
    if !bi.IsUint64() {
        return 0, fmt.Errorf("amount %s overflows", amount)
    }
    return bi.Uint64(), nil
}

// withExtras appends the optional reference key to the transfer
// instruction's account list and adds a memo instruction ahead of the
// transfer when a memo is present.
func withExtras(ix solana.Instruction, reference *solana.PublicKey, memo string) []solana.Instruction {
    if reference != nil {
        data, err := ix.Data()
        if err != nil {
            data = nil
        }
        accounts := append(solana.AccountMetaSlice{}, ix.Accounts()...)
        accounts = append(accounts, solana.Meta(*reference))
        ix = solana.NewInstruction(ix.ProgramID(), accounts, data)
    }
    instrs := []solana.Instruction{ix}
    if memo != "" {
        memoIx := solana.NewInstruction(MemoProgramID, solana.AccountMetaSlice{}, []byte(memo))
        instrs = append([]solana.Instruction{memoIx}, instrs...)
    }
    return instrs
}

// finalize anchors the instructions to a recent blockhash, sets the fee
// payer, and round-trips the transaction through its byte representation.
// The round trip normalizes account-key ordering so the serialized form the
// wallet signs is byte-stable.
func (c *Composer) finalize(ctx context.Context, feePayer solana.PublicKey, instrs []solana.Instruction) (*solana.Transaction, error) {
    blockhash, err := c.q.LatestBlockhash(ctx)
    if err != nil {
        return nil, fmt.Errorf("latest blockhash: %w", err)
    }
    tx, err := solana.NewTransaction(instrs, blockhash, solana.TransactionPayer(feePayer))
    if err != nil {
        return nil, fmt.Errorf("build transaction: %w", err)
    }
    raw, err := tx.MarshalBinary()
    if err != nil {
        return nil, fmt.Errorf("serialize transaction: %w", err)
    }
    normalized, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
    if err != nil {
        return nil, fmt.Errorf("round-trip transaction: %w", err)
    }
    return normalized, nil
}
