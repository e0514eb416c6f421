package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, ints and uints for
// amounts and durations.  Ledger addresses are kept as strings here and
// parsed once at startup so that a typo fails fast rather than on the first
// scan.
type Config struct {
    Env  string // application environment (e.g. "dev", "prod")
    Port string // HTTP port to listen on

    RPCEndpoint    string // JSON-RPC endpoint of the ledger query service
    MerchantWallet string // merchant (recipient) wallet address
    SPLTokenMint   string // default SPL token mint for token-transfer checkouts

    // TicketCollectionMint is the default collection whose tokens grant
    // entry.  A request may override it via the ticketCollectionMintId
    // query parameter.
    TicketCollectionMint string

    CheckoutLamports uint64 // server-determined value-transfer amount, in lamports
    CheckoutMessage  string // confirmation message returned with a composed transaction

    // Messaging broker settings.  AppID namespaces channels so several
    // deployments can share one broker.  Key identifies this publisher in
    // event envelopes.  Secret and Cluster are fallbacks for the broker
    // password and address when the REDIS_* variables are not set.
    BrokerAppID   string
    BrokerKey     string
    BrokerSecret  string
    BrokerCluster string

    // FeePayerSecret optionally holds the private key of a central fee
    // payer.  When set, mark-token-used transactions are funded by this
    // identity instead of the scanning wallet.
    FeePayerSecret string

    JWTSecret    string // secret used to sign terminal JWTs
    AccessTTLMin int    // access token time-to-live in minutes

    TerminalID           string // identifier the terminal logs in with
    TerminalPasswordHash string // bcrypt hash of the terminal password

    // Database settings for the checkout-session store.  DBHost empty
    // disables persistence entirely: the server then trusts query
    // parameters only, the way the first version of this flow worked.
    DBUser string
    DBPass string
    DBHost string
    DBPort string
    DBName string
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Everything else has
// a sensible default so a development instance starts with only a handful
// of variables set.
func Load() Config {
    return Config{
        Env:  envStr("APP_ENV", "dev"),
        Port: must("APP_PORT"),

        RPCEndpoint:    must("RPC_ENDPOINT"),
        MerchantWallet: must("MERCHANT_WALLET"),
        SPLTokenMint:   os.Getenv("SPL_TOKEN_MINT"),

        TicketCollectionMint: os.Getenv("TICKET_COLLECTION_MINT"),

        CheckoutLamports: mustUint("CHECKOUT_AMOUNT_LAMPORTS", 100_000_000), // 0.1 SOL
        CheckoutMessage:  envStr("CHECKOUT_MESSAGE", "Thank you for your purchase"),

        BrokerAppID:   envStr("APP_ID", "pos"),
        BrokerKey:     os.Getenv("KEY"),
        BrokerSecret:  os.Getenv("SECRET"),
        BrokerCluster: os.Getenv("CLUSTER"),

        FeePayerSecret: os.Getenv("FEE_PAYER_SECRET"),

        JWTSecret:    must("JWT_SECRET"),
        AccessTTLMin: mustInt("ACCESS_TOKEN_TTL_MIN", 60),

        TerminalID:           envStr("TERMINAL_ID", "pos-1"),
        TerminalPasswordHash: os.Getenv("TERMINAL_PASSWORD_HASH"),

        DBUser: os.Getenv("DB_USER"),
        DBPass: os.Getenv("DB_PASS"),
        DBHost: os.Getenv("DB_HOST"),
        DBPort: envStr("DB_PORT", "3306"),
        DBName: envStr("DB_NAME", "pos_checkout"),
    }
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// mustInt reads an optional integer variable, falling back to def when the
// variable is unset.  A present but malformed value is a fatal error: a
// half-configured amount is worse than a missing one.
func mustInt(key string, def int) int {
    s, ok := os.LookupEnv(key)
    if !ok || s == "" {
        return def
    }
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}

// mustUint is mustInt for unsigned lamport amounts.
func mustUint(key string, def uint64) uint64 {
    s, ok := os.LookupEnv(key)
    if !ok || s == "" {
        return def
    }
    n, err := strconv.ParseUint(s, 10, 64)
    if err != nil {
        log.Fatalf("invalid uint for %s: %q", key, s)
    }
    return n
}
