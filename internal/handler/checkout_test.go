package handler

import (
    "context"
    "encoding/base64"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"

    bin "github.com/gagliardetto/binary"
    "github.com/gagliardetto/solana-go"
    "github.com/gagliardetto/solana-go/programs/token"
    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/BlockLive/solana-pay/internal/config"
    "github.com/BlockLive/solana-pay/internal/ledger"
    "github.com/BlockLive/solana-pay/internal/model"
    "github.com/BlockLive/solana-pay/internal/notify"
)

// stubLedger implements ledger.Querier for handler tests. It describes a
// wallet holding tickets of held collections and a healthy RPC unless the
// error fields are set.
type stubLedger struct {
    holdings     []ledger.TokenHolding
    supplies     map[solana.PublicKey][2]uint64
    metadata     map[solana.PublicKey]*ledger.Metadata
    holdingsErr  error
    blockhashErr error
}

func newStubLedger() *stubLedger {
    return &stubLedger{
        supplies: map[solana.PublicKey][2]uint64{},
        metadata: map[solana.PublicKey]*ledger.Metadata{},
    }
}

func (s *stubLedger) addTicket(collection solana.PublicKey) solana.PublicKey {
    mint := solana.NewWallet().PublicKey()
    s.holdings = append(s.holdings, ledger.TokenHolding{Mint: mint, Amount: 1})
    s.supplies[mint] = [2]uint64{1, 0}
    s.metadata[mint] = &ledger.Metadata{
        Mint:       mint,
        Collection: &ledger.Collection{Verified: true, Key: collection},
        Uses:       &ledger.Uses{Remaining: 1, Total: 1},
    }
    return mint
}

func (s *stubLedger) TokenHoldings(context.Context, solana.PublicKey) ([]ledger.TokenHolding, error) {
    return s.holdings, s.holdingsErr
}

func (s *stubLedger) TokenAccount(context.Context, solana.PublicKey) (*token.Account, error) {
    return nil, ledger.ErrAccountNotFound
}

func (s *stubLedger) Mint(context.Context, solana.PublicKey) (*token.Mint, error) {
    return nil, ledger.ErrAccountNotFound
}

func (s *stubLedger) TokenSupply(_ context.Context, mint solana.PublicKey) (uint64, uint8, error) {
    sup, ok := s.supplies[mint]
    if !ok {
        return 0, 0, errors.New("unknown mint")
    }
    return sup[0], uint8(sup[1]), nil
}

func (s *stubLedger) Metadata(_ context.Context, mint solana.PublicKey) (*ledger.Metadata, error) {
    md, ok := s.metadata[mint]
    if !ok {
        return nil, ledger.ErrNoMetadata
    }
    return md, nil
}

func (s *stubLedger) LatestBlockhash(context.Context) (solana.Hash, error) {
    if s.blockhashErr != nil {
        return solana.Hash{}, s.blockhashErr
    }
    var h solana.Hash
    copy(h[:], []byte("pos-checkout-test-blockhash-0001"))
    return h, nil
}

// recordingPublisher captures every publish in order.
type recordingPublisher struct {
    channels []string
    events   []string
    statuses []notify.ScanStatus
    err      error
}

func (p *recordingPublisher) Publish(_ context.Context, channel, event string, payload any) error {
    p.channels = append(p.channels, channel)
    p.events = append(p.events, event)
    p.statuses = append(p.statuses, payload.(notify.ScanStatus))
    return p.err
}

func testConfig() config.Config {
    return config.Config{
        MerchantWallet:   solana.NewWallet().PublicKey().String(),
        CheckoutLamports: 100_000_000,
        CheckoutMessage:  "Thank you for your purchase",
    }
}

func newTestCheckout(t *testing.T, q ledger.Querier, pub notify.Publisher) *CheckoutHandler {
    t.Helper()
    return newTestCheckoutWithSessions(t, q, pub, nil)
}

func newTestCheckoutWithSessions(t *testing.T, q ledger.Querier, pub notify.Publisher, store SessionStore) *CheckoutHandler {
    t.Helper()
    h, err := NewCheckoutHandler(testConfig(), ledger.NewResolver(q), ledger.NewComposer(q), pub, store, nil)
    require.NoError(t, err)
    return h
}

func postScan(t *testing.T, h *CheckoutHandler, target, body string) *httptest.ResponseRecorder {
    t.Helper()
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
    req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    rec := httptest.NewRecorder()
    require.NoError(t, h.TransactionRequest(e.NewContext(req, rec)))
    return rec
}

func TestLabel(t *testing.T) {
    h := newTestCheckout(t, newStubLedger(), &recordingPublisher{})
    e := echo.New()
    req := httptest.NewRequest(http.MethodGet, "/api?label=Coffee", nil)
    req.Host = "pos.example.com"
    rec := httptest.NewRecorder()
    require.NoError(t, h.Label(e.NewContext(req, rec)))

    assert.Equal(t, http.StatusOK, rec.Code)
    var resp map[string]string
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
    assert.Equal(t, "Coffee", resp["label"])
    assert.Equal(t, "https://pos.example.com/solana-pay-logo.svg", resp["icon"])
}

func TestLabel_Missing(t *testing.T) {
    h := newTestCheckout(t, newStubLedger(), &recordingPublisher{})
    e := echo.New()
    rec := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodGet, "/api", nil)
    require.NoError(t, h.Label(e.NewContext(req, rec)))
    assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransactionRequest_NonHolder(t *testing.T) {
    pub := &recordingPublisher{}
    h := newTestCheckout(t, newStubLedger(), pub)

    collection := solana.NewWallet().PublicKey()
    account := solana.NewWallet().PublicKey()
    rec := postScan(t, h,
        "/api?channel=abc&ticketCollectionMintId="+collection.String(),
        `{"account":"`+account.String()+`"}`)

    assert.Equal(t, http.StatusOK, rec.Code)
    var resp map[string]string
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
    raw, err := base64.StdEncoding.DecodeString(resp["transaction"])
    require.NoError(t, err)
    assert.NotEmpty(t, raw)
    assert.Equal(t, "Thank you for your purchase", resp["message"])

    // Two events on the channel, strictly ordered: ownership first,
    // readiness second.
    require.Len(t, pub.statuses, 2)
    assert.Equal(t, []string{"abc", "abc"}, pub.channels)
    assert.Equal(t, []string{notify.EventEntryScan, notify.EventEntryScan}, pub.events)
    assert.False(t, pub.statuses[0].HasNFT)
    assert.Nil(t, pub.statuses[0].UtilizeReady)
    assert.False(t, pub.statuses[1].HasNFT)
    require.NotNil(t, pub.statuses[1].UtilizeReady)
    assert.True(t, *pub.statuses[1].UtilizeReady)
}

func TestTransactionRequest_HolderMarkUsed(t *testing.T) {
    pub := &recordingPublisher{}
    stub := newStubLedger()
    collection := solana.NewWallet().PublicKey()
    stub.addTicket(collection)
    h := newTestCheckout(t, stub, pub)

    account := solana.NewWallet().PublicKey()
    rec := postScan(t, h,
        "/api?channel=abc&markUsed=true&ticketCollectionMintId="+collection.String(),
        `{"account":"`+account.String()+`"}`)

    assert.Equal(t, http.StatusOK, rec.Code)
    require.Len(t, pub.statuses, 2)
    assert.True(t, pub.statuses[0].HasNFT)
    assert.True(t, pub.statuses[1].HasNFT)
    require.NotNil(t, pub.statuses[1].UtilizeReady)
    assert.True(t, *pub.statuses[1].UtilizeReady)
}

func TestTransactionRequest_MissingAccount(t *testing.T) {
    pub := &recordingPublisher{}
    h := newTestCheckout(t, newStubLedger(), pub)

    rec := postScan(t, h,
        "/api?channel=abc&ticketCollectionMintId="+solana.NewWallet().PublicKey().String(),
        `{}`)

    assert.Equal(t, http.StatusInternalServerError, rec.Code)
    assert.JSONEq(t, `{"error":"failed to load data"}`, rec.Body.String())
    // Pure input validation failures publish nothing.
    assert.Empty(t, pub.statuses)
}

func TestTransactionRequest_MissingChannel(t *testing.T) {
    pub := &recordingPublisher{}
    h := newTestCheckout(t, newStubLedger(), pub)

    rec := postScan(t, h,
        "/api?ticketCollectionMintId="+solana.NewWallet().PublicKey().String(),
        `{"account":"`+solana.NewWallet().PublicKey().String()+`"}`)

    assert.Equal(t, http.StatusInternalServerError, rec.Code)
    assert.Empty(t, pub.statuses)
}

func TestTransactionRequest_ResolutionFailureDegrades(t *testing.T) {
    pub := &recordingPublisher{}
    stub := newStubLedger()
    stub.holdingsErr = errors.New("rpc down")
    h := newTestCheckout(t, stub, pub)

    rec := postScan(t, h,
        "/api?channel=abc&ticketCollectionMintId="+solana.NewWallet().PublicKey().String(),
        `{"account":"`+solana.NewWallet().PublicKey().String()+`"}`)

    // Ownership lookup failure is downgraded to hasNft=false and the flow
    // continues to composition.
    assert.Equal(t, http.StatusOK, rec.Code)
    require.Len(t, pub.statuses, 2)
    assert.False(t, pub.statuses[0].HasNFT)
    require.NotNil(t, pub.statuses[1].UtilizeReady)
    assert.True(t, *pub.statuses[1].UtilizeReady)
}

func TestTransactionRequest_CompositionFailureStillPublishes(t *testing.T) {
    pub := &recordingPublisher{}
    stub := newStubLedger()
    stub.blockhashErr = errors.New("rpc down")
    h := newTestCheckout(t, stub, pub)

    rec := postScan(t, h,
        "/api?channel=abc&ticketCollectionMintId="+solana.NewWallet().PublicKey().String(),
        `{"account":"`+solana.NewWallet().PublicKey().String()+`"}`)

    assert.Equal(t, http.StatusInternalServerError, rec.Code)
    assert.JSONEq(t, `{"error":"failed to load data"}`, rec.Body.String())

    // The display still learns the final state: both events delivered, the
    // second reporting the transaction is not ready.
    require.Len(t, pub.statuses, 2)
    require.NotNil(t, pub.statuses[1].UtilizeReady)
    assert.False(t, *pub.statuses[1].UtilizeReady)
}

func TestTransactionRequest_SessionOverride(t *testing.T) {
    pub := &recordingPublisher{}
    store := newFakeSessionStore()
    collection := solana.NewWallet().PublicKey()
    recipient := solana.NewWallet().PublicKey()
    store.add(model.CheckoutSession{
        ID:             "sess-1",
        Channel:        "chan-from-session",
        Recipient:      recipient.String(),
        CollectionMint: collection.String(),
        AmountLamports: 42,
    })
    h := newTestCheckoutWithSessions(t, newStubLedger(), pub, store)

    // The query string carries a different channel; the persisted session
    // wins.
    account := solana.NewWallet().PublicKey()
    rec := postScan(t, h, "/api?session=sess-1&channel=tampered",
        `{"account":"`+account.String()+`"}`)

    assert.Equal(t, http.StatusOK, rec.Code)
    require.Len(t, pub.channels, 2)
    assert.Equal(t, []string{"chan-from-session", "chan-from-session"}, pub.channels)

    var resp map[string]string
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
    raw, err := base64.StdEncoding.DecodeString(resp["transaction"])
    require.NoError(t, err)
    tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
    require.NoError(t, err)
    // The composed transfer pays the session's recipient, not the config
    // default.
    assert.Contains(t, tx.Message.AccountKeys, recipient)
}

func TestTransactionRequest_UnknownSession(t *testing.T) {
    pub := &recordingPublisher{}
    h := newTestCheckoutWithSessions(t, newStubLedger(), pub, newFakeSessionStore())

    rec := postScan(t, h, "/api?session=nope",
        `{"account":"`+solana.NewWallet().PublicKey().String()+`"}`)

    assert.Equal(t, http.StatusInternalServerError, rec.Code)
    assert.JSONEq(t, `{"error":"failed to load data"}`, rec.Body.String())
    // Parameter loading failed, so nothing was published.
    assert.Empty(t, pub.statuses)
}

func TestTransactionRequest_ChannelSessionIsAuthoritative(t *testing.T) {
    pub := &recordingPublisher{}
    stub := newStubLedger()
    collection := solana.NewWallet().PublicKey()
    stub.addTicket(collection)
    store := newFakeSessionStore()
    store.add(model.CheckoutSession{
        ID:             "sess-2",
        Channel:        "chan-abc",
        CollectionMint: collection.String(),
        AmountLamports: 42,
        MarkUsed:       true,
    })
    h := newTestCheckoutWithSessions(t, stub, pub, store)

    // The caller tries to downgrade the checkout to a plain transfer; the
    // session bound to the channel keeps mark-used in force.
    rec := postScan(t, h, "/api?channel=chan-abc&markUsed=false",
        `{"account":"`+solana.NewWallet().PublicKey().String()+`"}`)

    assert.Equal(t, http.StatusOK, rec.Code)
    require.Len(t, pub.statuses, 2)
    assert.True(t, pub.statuses[0].HasNFT)

    var resp map[string]string
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
    raw, err := base64.StdEncoding.DecodeString(resp["transaction"])
    require.NoError(t, err)
    tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
    require.NoError(t, err)
    assert.Contains(t, tx.Message.AccountKeys, ledger.MetadataProgramID)
}

func TestTransactionRequest_PublishFailureIsSwallowed(t *testing.T) {
    pub := &recordingPublisher{err: errors.New("broker down")}
    h := newTestCheckout(t, newStubLedger(), pub)

    rec := postScan(t, h,
        "/api?channel=abc&ticketCollectionMintId="+solana.NewWallet().PublicKey().String(),
        `{"account":"`+solana.NewWallet().PublicKey().String()+`"}`)

    // Broker trouble never reaches the wallet.
    assert.Equal(t, http.StatusOK, rec.Code)
}
