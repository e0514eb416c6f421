package ledger

import (
    "context"
    "errors"
    "testing"

    bin "github.com/gagliardetto/binary"
    "github.com/gagliardetto/solana-go"
    "github.com/gagliardetto/solana-go/programs/token"
    "github.com/shopspring/decimal"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func testBlockhashQuerier() *fakeQuerier {
    f := newFakeQuerier()
    copy(f.blockhash[:], []byte("pos-checkout-test-blockhash-0001"))
    return f
}

// setupTransferAccounts registers an initialized mint plus sender and
// recipient associated token accounts on the fake.
func setupTransferAccounts(t *testing.T, f *fakeQuerier, sender, recipient, mint solana.PublicKey, senderBalance uint64, decimals uint8) (senderATA, recipientATA solana.PublicKey) {
    t.Helper()
    var err error
    senderATA, err = AssociatedTokenAddress(sender, mint)
    require.NoError(t, err)
    recipientATA, err = AssociatedTokenAddress(recipient, mint)
    require.NoError(t, err)
    f.tokenAccounts[senderATA] = &token.Account{
        Mint: mint, Owner: sender, Amount: senderBalance, State: token.Initialized,
    }
    f.tokenAccounts[recipientATA] = &token.Account{
        Mint: mint, Owner: recipient, State: token.Initialized,
    }
    f.mints[mint] = &token.Mint{Supply: 1_000_000, Decimals: decimals, IsInitialized: true}
    return senderATA, recipientATA
}

func TestValueTransfer_RoundTripIsByteStable(t *testing.T) {
    f := testBlockhashQuerier()
    c := NewComposer(f)
    sender := solana.NewWallet().PublicKey()

    tx, err := c.ValueTransfer(context.Background(), ValueTransferParams{
        Sender:    sender,
        Recipient: solana.NewWallet().PublicKey(),
        Lamports:  100_000_000,
    })
    require.NoError(t, err)

    first, err := tx.MarshalBinary()
    require.NoError(t, err)
    decoded, err := solana.TransactionFromDecoder(bin.NewBinDecoder(first))
    require.NoError(t, err)
    second, err := decoded.MarshalBinary()
    require.NoError(t, err)
    assert.Equal(t, first, second)

    // Fee payer is the scanning wallet.
    require.NotEmpty(t, tx.Message.AccountKeys)
    assert.Equal(t, sender, tx.Message.AccountKeys[0])
}

func TestValueTransfer_ReferenceAndMemoAttached(t *testing.T) {
    f := testBlockhashQuerier()
    c := NewComposer(f)
    ref := solana.NewWallet().PublicKey()

    tx, err := c.ValueTransfer(context.Background(), ValueTransferParams{
        Sender:    solana.NewWallet().PublicKey(),
        Recipient: solana.NewWallet().PublicKey(),
        Lamports:  1,
        Reference: &ref,
        Memo:      "order 42",
    })
    require.NoError(t, err)

    assert.Len(t, tx.Message.Instructions, 2) // memo then transfer
    assert.Contains(t, tx.Message.AccountKeys, ref)
    assert.Contains(t, tx.Message.AccountKeys, MemoProgramID)
}

func TestTokenTransfer_ComposesCheckedTransfer(t *testing.T) {
    f := testBlockhashQuerier()
    sender := solana.NewWallet().PublicKey()
    recipient := solana.NewWallet().PublicKey()
    mint := solana.NewWallet().PublicKey()
    setupTransferAccounts(t, f, sender, recipient, mint, 1_000, 2)

    c := NewComposer(f)
    tx, err := c.TokenTransfer(context.Background(), TokenTransferParams{
        Sender:    sender,
        Recipient: recipient,
        Mint:      mint,
        Amount:    decimal.RequireFromString("5.5"), // 550 base units
    })
    require.NoError(t, err)
    assert.Contains(t, tx.Message.AccountKeys, solana.TokenProgramID)

    // A fresh reference key is generated when none is supplied: the
    // instruction carries one more account than the checked transfer needs.
    require.Len(t, tx.Message.Instructions, 1)
    assert.Len(t, tx.Message.Instructions[0].Accounts, 5)
}

func TestTokenTransfer_ValidationErrors(t *testing.T) {
    sender := solana.NewWallet().PublicKey()
    recipient := solana.NewWallet().PublicKey()
    mint := solana.NewWallet().PublicKey()

    tests := []struct {
        name    string
        setup   func(t *testing.T, f *fakeQuerier)
        amount  string
        wantErr error
    }{
        {
            name:    "missing sender account",
            setup:   func(t *testing.T, f *fakeQuerier) {},
            amount:  "1",
            wantErr: ErrAccountNotFound,
        },
        {
            name: "frozen sender",
            setup: func(t *testing.T, f *fakeQuerier) {
                ata, _ := setupTransferAccounts(t, f, sender, recipient, mint, 1_000, 2)
                f.tokenAccounts[ata].State = token.Frozen
            },
            amount:  "1",
            wantErr: ErrAccountFrozen,
        },
        {
            name: "uninitialized recipient",
            setup: func(t *testing.T, f *fakeQuerier) {
                _, ata := setupTransferAccounts(t, f, sender, recipient, mint, 1_000, 2)
                f.tokenAccounts[ata].State = token.Uninitialized
            },
            amount:  "1",
            wantErr: ErrAccountNotInitialized,
        },
        {
            name: "uninitialized mint",
            setup: func(t *testing.T, f *fakeQuerier) {
                setupTransferAccounts(t, f, sender, recipient, mint, 1_000, 2)
                f.mints[mint].IsInitialized = false
            },
            amount:  "1",
            wantErr: ErrMintNotInitialized,
        },
        {
            name: "insufficient funds",
            setup: func(t *testing.T, f *fakeQuerier) {
                setupTransferAccounts(t, f, sender, recipient, mint, 100, 2)
            },
            amount:  "1.01", // 101 base units > 100
            wantErr: ErrInsufficientFunds,
        },
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            f := testBlockhashQuerier()
            tt.setup(t, f)
            c := NewComposer(f)
            _, err := c.TokenTransfer(context.Background(), TokenTransferParams{
                Sender:    sender,
                Recipient: recipient,
                Mint:      mint,
                Amount:    decimal.RequireFromString(tt.amount),
            })
            assert.ErrorIs(t, err, tt.wantErr)
        })
    }
}

func TestMarkTokenUsed(t *testing.T) {
    owner := solana.NewWallet().PublicKey()
    mint := solana.NewWallet().PublicKey()

    f := testBlockhashQuerier()
    f.metadata[mint] = &Metadata{
        Mint: mint,
        Uses: &Uses{Remaining: 2, Total: 2},
    }
    c := NewComposer(f)

    tx, err := c.MarkTokenUsed(context.Background(), MarkTokenUsedParams{Mint: mint, Owner: owner})
    require.NoError(t, err)
    assert.Equal(t, owner, tx.Message.AccountKeys[0]) // owner pays without a central payer
    assert.Contains(t, tx.Message.AccountKeys, MetadataProgramID)

    metadataAddr, err := MetadataAddress(mint)
    require.NoError(t, err)
    assert.Contains(t, tx.Message.AccountKeys, metadataAddr)
}

func TestMarkTokenUsed_CentralFeePayer(t *testing.T) {
    owner := solana.NewWallet().PublicKey()
    payer := solana.NewWallet().PublicKey()
    mint := solana.NewWallet().PublicKey()

    f := testBlockhashQuerier()
    f.metadata[mint] = &Metadata{Mint: mint}
    c := NewComposer(f).WithFeePayer(payer)

    tx, err := c.MarkTokenUsed(context.Background(), MarkTokenUsedParams{Mint: mint, Owner: owner})
    require.NoError(t, err)
    assert.Equal(t, payer, tx.Message.AccountKeys[0])
}

func TestMarkTokenUsed_Errors(t *testing.T) {
    owner := solana.NewWallet().PublicKey()
    mint := solana.NewWallet().PublicKey()

    f := testBlockhashQuerier()
    c := NewComposer(f)
    _, err := c.MarkTokenUsed(context.Background(), MarkTokenUsedParams{Mint: mint, Owner: owner})
    assert.ErrorIs(t, err, ErrNoMetadata)

    f.metadata[mint] = &Metadata{Mint: mint, Uses: &Uses{Remaining: 0, Total: 2}}
    _, err = c.MarkTokenUsed(context.Background(), MarkTokenUsedParams{Mint: mint, Owner: owner})
    assert.ErrorIs(t, err, ErrNoUsesRemaining)
}

func TestCompose_BlockhashFailure(t *testing.T) {
    f := testBlockhashQuerier()
    f.blockhashErr = errors.New("rpc down")
    c := NewComposer(f)

    _, err := c.ValueTransfer(context.Background(), ValueTransferParams{
        Sender:    solana.NewWallet().PublicKey(),
        Recipient: solana.NewWallet().PublicKey(),
        Lamports:  1,
    })
    assert.Error(t, err)
}
