package ledger

import (
    "fmt"

    bin "github.com/gagliardetto/binary"
    "github.com/gagliardetto/solana-go"
)

// MetadataProgramID is the well-known token metadata program that owns the
// per-mint metadata records.
var MetadataProgramID = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")

// MemoProgramID is the program that records free-text memos on a
// transaction.
var MemoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

// MetadataAddress derives the deterministic metadata record address for a
// mint: a program address of ["metadata", program id, mint] under the
// metadata program.
func MetadataAddress(mint solana.PublicKey) (solana.PublicKey, error) {
    addr, _, err := solana.FindProgramAddress(
        [][]byte{
            []byte("metadata"),
            MetadataProgramID.Bytes(),
            mint.Bytes(),
        },
        MetadataProgramID,
    )
    return addr, err
}

// AssociatedTokenAddress derives the owner's associated token account for a
// mint.
func AssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
    addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
    return addr, err
}

// Collection is a metadata record's pointer to the collection the token
// belongs to.  Key is the collection's mint; Verified reports whether the
// collection authority has countersigned the membership.
type Collection struct {
    Verified bool
    Key      solana.PublicKey
}

// Uses tracks how many times a token may still be redeemed for entry.
type Uses struct {
    UseMethod uint8
    Remaining uint64
    Total     uint64
}

// Metadata is the on-chain metadata record for a mint.  Only the prefix of
// the record needed by this service is modeled; trailing fields added by
// later program versions are ignored by the decoder.
type Metadata struct {
    Key                 uint8
    UpdateAuthority     solana.PublicKey
    Mint                solana.PublicKey
    Data                MetadataData
    PrimarySaleHappened bool
    IsMutable           bool
    EditionNonce        *uint8      `bin:"optional"`
    TokenStandard       *uint8      `bin:"optional"`
    Collection          *Collection `bin:"optional"`
    Uses                *Uses       `bin:"optional"`
}

// MetadataData carries the display attributes of a token.
type MetadataData struct {
    Name                 string
    Symbol               string
    URI                  string
    SellerFeeBasisPoints uint16
    Creators             *[]Creator `bin:"optional"`
}

// Creator is one entry of a metadata record's creator list.
type Creator struct {
    Address  solana.PublicKey
    Verified bool
    Share    uint8
}

// DecodeMetadata parses a raw metadata account.  Records are padded on
// chain, so leftover bytes after the decoded prefix are expected.
func DecodeMetadata(data []byte) (*Metadata, error) {
    var md Metadata
    if err := bin.NewBorshDecoder(data).Decode(&md); err != nil {
        return nil, fmt.Errorf("decode metadata: %w", err)
    }
    return &md, nil
}
