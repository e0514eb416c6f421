// Command display is a terminal-mode stand-in for the checkout display
// surface.  It generates a fresh channel name, prints the Solana Pay URL to
// render as a QR code, then subscribes to the channel and reports scan
// status as the server publishes it.  With terminal credentials configured
// it instead logs in and creates a persisted session, so the scan endpoint
// loads checkout parameters server-side.
package main

import (
    "bytes"
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "log"
    "net/http"
    "net/url"
    "os"
    "os/signal"
    "time"

    "github.com/gagliardetto/solana-go"
    "github.com/joho/godotenv"
    "github.com/shopspring/decimal"

    "github.com/BlockLive/solana-pay/internal/config"
    "github.com/BlockLive/solana-pay/internal/notify"
    "github.com/BlockLive/solana-pay/internal/payurl"
)

func main() {
    _ = godotenv.Load()

    base := flag.String("base", "https://localhost:3000", "base URL of the checkout server")
    collection := flag.String("collection", os.Getenv("TICKET_COLLECTION_MINT"), "ticket collection mint")
    label := flag.String("label", "Checkout", "checkout label shown by the wallet")
    markUsed := flag.Bool("mark-used", false, "ask the server to consume a ticket use on entry")
    transfer := flag.String("transfer", "", "SOL amount for a bare transfer request (no server round trip)")
    recipient := flag.String("recipient", os.Getenv("MERCHANT_WALLET"), "recipient of a bare transfer request")
    flag.Parse()

    // Bare transfer mode: the wallet pays the encoded recipient directly,
    // no transaction-request endpoint involved.  The reference key lets the
    // terminal find the settled transaction on chain afterwards.
    if *transfer != "" {
        amount, err := decimal.NewFromString(*transfer)
        if err != nil || amount.IsNegative() {
            log.Fatalf("invalid -transfer amount %q", *transfer)
        }
        if *recipient == "" {
            log.Fatal("bare transfer needs -recipient or MERCHANT_WALLET")
        }
        reference := solana.NewWallet().PublicKey().String()
        fmt.Println("payment request:", payurl.EncodeTransfer(*recipient, payurl.TransferParams{
            Amount:    &amount,
            Reference: reference,
            Label:     *label,
        }))
        fmt.Println("reference:", reference)
        return
    }

    // With terminal credentials present, create a server-side session and
    // let the scan endpoint resolve its parameters from the store.
    // Otherwise fall back to query-string mode with a locally generated
    // channel.
    var channel, sessionID string
    if os.Getenv("TERMINAL_PASSWORD") != "" {
        var err error
        sessionID, channel, err = createSession(*base, *label, *collection, *markUsed)
        if err != nil {
            log.Fatalf("create session: %v", err)
        }
    } else {
        // The channel name is a throwaway keypair's public key: unguessable
        // and address-shaped, created once per checkout session.
        channel = solana.NewWallet().PublicKey().String()
    }

    link, err := url.Parse(*base + "/api")
    if err != nil {
        log.Fatalf("bad base URL: %v", err)
    }
    q := link.Query()
    if sessionID != "" {
        q.Set("session", sessionID)
    } else {
        q.Set("channel", channel)
        if *collection != "" {
            q.Set("ticketCollectionMintId", *collection)
        }
        if *markUsed {
            q.Set("markUsed", "true")
        }
    }
    link.RawQuery = q.Encode()

    fmt.Println("payment request:", payurl.EncodeTransactionRequest(link.String()))
    fmt.Println("status: SCAN!")

    cfg := config.Config{
        BrokerAppID:   envOr("APP_ID", "pos"),
        BrokerKey:     os.Getenv("KEY"),
        BrokerSecret:  os.Getenv("SECRET"),
        BrokerCluster: os.Getenv("CLUSTER"),
    }
    rdb := config.NewRedisClient(cfg)
    if rdb == nil {
        log.Fatal("broker unreachable; cannot subscribe to scan events")
    }

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
    defer stop()

    pub := notify.NewRedisPublisher(rdb, cfg.BrokerAppID, cfg.BrokerKey)
    events, cancel := pub.Subscribe(ctx, channel)
    defer cancel()

    for {
        select {
        case <-ctx.Done():
            return
        case env, ok := <-events:
            if !ok {
                return
            }
            if env.Event != notify.EventEntryScan {
                continue
            }
            var st notify.ScanStatus
            if err := json.Unmarshal(env.Payload, &st); err != nil {
                log.Printf("bad scan status: %v", err)
                continue
            }
            render(st)
        }
    }
}

// createSession logs the terminal in and creates a persisted checkout
// session.  Returns the session id and the server-generated channel name.
func createSession(base, label, collection string, markUsed bool) (id, channel string, err error) {
    client := &http.Client{Timeout: 10 * time.Second}

    loginBody, _ := json.Marshal(map[string]string{
        "terminal_id": envOr("TERMINAL_ID", "pos-1"),
        "password":    os.Getenv("TERMINAL_PASSWORD"),
    })
    var login struct {
        Access struct {
            Token string `json:"token"`
        } `json:"access"`
    }
    if err := postJSON(client, base+"/v1/auth/login", "", loginBody, &login); err != nil {
        return "", "", fmt.Errorf("login: %w", err)
    }

    sessionBody, _ := json.Marshal(map[string]any{
        "label":           label,
        "collection_mint": collection,
        "mark_used":       markUsed,
    })
    var session struct {
        ID      string `json:"id"`
        Channel string `json:"channel"`
    }
    if err := postJSON(client, base+"/v1/sessions", login.Access.Token, sessionBody, &session); err != nil {
        return "", "", err
    }
    return session.ID, session.Channel, nil
}

func postJSON(client *http.Client, target, bearer string, body []byte, out any) error {
    req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(body))
    if err != nil {
        return err
    }
    req.Header.Set("Content-Type", "application/json")
    if bearer != "" {
        req.Header.Set("Authorization", "Bearer "+bearer)
    }
    resp, err := client.Do(req)
    if err != nil {
        return err
    }
    defer resp.Body.Close()
    if resp.StatusCode/100 != 2 {
        return fmt.Errorf("%s: status %d", target, resp.StatusCode)
    }
    return json.NewDecoder(resp.Body).Decode(out)
}

func render(st notify.ScanStatus) {
    switch {
    case st.UtilizeReady == nil && st.HasNFT:
        fmt.Println("status: YES NFT")
    case st.UtilizeReady == nil:
        fmt.Println("status: NO NFT")
    case *st.UtilizeReady && st.HasNFT:
        fmt.Println("status: SUCCESS!")
    case *st.UtilizeReady:
        fmt.Println("status: READY (no ticket)")
    default:
        fmt.Println("status: FAILED")
    }
}

func envOr(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}
