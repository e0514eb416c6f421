package main // Entry point package

import (
    "context" // timeouts for the session sweep
    "log"     // Logging library
    "time"    // session sweep interval

    "github.com/gagliardetto/solana-go"
    "github.com/gagliardetto/solana-go/rpc"
    "github.com/joho/godotenv"
    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"

    "github.com/BlockLive/solana-pay/internal/config"
    "github.com/BlockLive/solana-pay/internal/database"
    "github.com/BlockLive/solana-pay/internal/handler"
    "github.com/BlockLive/solana-pay/internal/ledger"
    "github.com/BlockLive/solana-pay/internal/middleware"
    "github.com/BlockLive/solana-pay/internal/notify"
    "github.com/BlockLive/solana-pay/internal/queue"
    "github.com/BlockLive/solana-pay/internal/repository"
    "github.com/BlockLive/solana-pay/internal/router"
    queue_publisher "github.com/BlockLive/solana-pay/internal/service"
)

// sessionMaxAge bounds how long an unused checkout session survives before
// the sweep drops it.
const sessionMaxAge = 24 * time.Hour

func main() {
    _ = godotenv.Load() // .env is optional; real deployments set the environment directly
    cfg := config.Load()

    // Ledger access.  The RPC client is a process-wide handle; everything
    // downstream takes it through the Querier interface.
    querier := ledger.NewRPCQuerier(rpc.New(cfg.RPCEndpoint))
    resolver := ledger.NewResolver(querier)
    composer := ledger.NewComposer(querier)
    if cfg.FeePayerSecret != "" {
        key, err := solana.PrivateKeyFromBase58(cfg.FeePayerSecret)
        if err != nil {
            log.Fatalf("invalid FEE_PAYER_SECRET: %v", err)
        }
        composer = composer.WithFeePayer(key.PublicKey())
        log.Printf("central fee payer enabled: %s", key.PublicKey())
    }

    // Realtime channel broker.  Without Redis the service still answers
    // wallets; scan status just lands in the process log.
    rdb := config.NewRedisClient(cfg)
    var notifier notify.Publisher
    if rdb != nil {
        notifier = notify.NewRedisPublisher(rdb, cfg.BrokerAppID, cfg.BrokerKey)
    } else {
        log.Printf("redis unavailable; scan events degrade to process log")
        notifier = notify.LogPublisher{}
    }

    // Optional session persistence.  The interface stays nil when no
    // database is configured so handlers degrade instead of dereferencing a
    // typed-nil repo.
    var sessions handler.SessionStore
    if cfg.DBHost != "" {
        db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
        if err != nil {
            log.Fatalf("database: %v", err)
        }
        repo := repository.NewSessionRepo(db)
        sessions = repo
        go sweepSessions(repo)
    } else {
        log.Printf("DB_HOST not set; running without session persistence")
    }

    checkout, err := handler.NewCheckoutHandler(cfg, resolver, composer, notifier, sessions, queue_publisher.PublishEntryScan)
    if err != nil {
        log.Fatalf("checkout handler: %v", err)
    }
    transfer := handler.NewTransferHandler(composer)
    auth := handler.NewAuthHandler(cfg)
    sessionHandler := handler.NewSessionHandler(cfg, sessions)

    // Background audit consumer; runs its own reconnect loop forever.
    go func() {
        if err := queue.StartEntryScanConsumer(); err != nil {
            log.Printf("scan consumer stopped: %v", err)
        }
    }()

    e := echo.New()
    e.Use(echomw.Recover())
    e.Use(echomw.CORS()) // wallets and display pages call from other origins

    router.RegisterRoutes(e)
    router.RegisterCheckout(e, checkout, transfer, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
    router.RegisterSessions(e, auth, sessionHandler, cfg.JWTSecret)

    addr := ":" + cfg.Port
    log.Printf("listening on %s (env=%s)", addr, cfg.Env)
    if err := e.Start(addr); err != nil {
        log.Fatal(err)
    }
}

// sweepSessions periodically drops stale checkout sessions.  Channel names
// rely on the broker's own lifecycle, so dropping the row is all the
// cleanup there is.
func sweepSessions(repo *repository.SessionRepo) {
    ticker := time.NewTicker(time.Hour)
    defer ticker.Stop()
    for range ticker.C {
        ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
        n, err := repo.DeleteExpired(ctx, sessionMaxAge)
        cancel()
        if err != nil {
            log.Printf("session sweep: %v", err)
            continue
        }
        if n > 0 {
            log.Printf("session sweep: dropped %d expired sessions", n)
        }
    }
}
