package repository

import (
    "context"
    "database/sql"
    "fmt"
    "time"

    "github.com/BlockLive/solana-pay/internal/model"
)

// SessionRepo stores checkout sessions in MySQL.
//
// Schema:
//
//	CREATE TABLE checkout_sessions (
//	    id              CHAR(36) PRIMARY KEY,
//	    channel         VARCHAR(64)  NOT NULL,
//	    recipient       VARCHAR(64)  NOT NULL,
//	    label           VARCHAR(255) NOT NULL,
//	    message         VARCHAR(255) NOT NULL DEFAULT '',
//	    collection_mint VARCHAR(64)  NOT NULL DEFAULT '',
//	    amount_lamports BIGINT UNSIGNED NOT NULL,
//	    mark_used       TINYINT(1)   NOT NULL DEFAULT 0,
//	    created_at      DATETIME     NOT NULL,
//	    UNIQUE KEY uq_sessions_channel (channel)
//	);
//
// The unique key on channel enforces the one-scan-sequence-per-channel
// invariant at the storage layer.
type SessionRepo struct {
    db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
    return &SessionRepo{db: db}
}

// Create persists a new checkout session.
func (r *SessionRepo) Create(ctx context.Context, s model.CheckoutSession) error {
    const q = `INSERT INTO checkout_sessions
        (id, channel, recipient, label, message, collection_mint, amount_lamports, mark_used, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
    _, err := r.db.ExecContext(ctx, q,
        s.ID, s.Channel, s.Recipient, s.Label, s.Message,
        s.CollectionMint, s.AmountLamports, s.MarkUsed, s.CreatedAt.UTC())
    if err != nil {
        return fmt.Errorf("insert session: %w", err)
    }
    return nil
}

// GetByID fetches a session by its opaque id.
func (r *SessionRepo) GetByID(ctx context.Context, id string) (*model.CheckoutSession, error) {
    const q = `SELECT id, channel, recipient, label, message, collection_mint,
        amount_lamports, mark_used, created_at
        FROM checkout_sessions WHERE id = ?`
    return r.scanOne(r.db.QueryRowContext(ctx, q, id))
}

// GetByChannel fetches the session bound to a channel name.
func (r *SessionRepo) GetByChannel(ctx context.Context, channel string) (*model.CheckoutSession, error) {
    const q = `SELECT id, channel, recipient, label, message, collection_mint,
        amount_lamports, mark_used, created_at
        FROM checkout_sessions WHERE channel = ?`
    return r.scanOne(r.db.QueryRowContext(ctx, q, channel))
}

// DeleteExpired removes sessions older than maxAge and returns how many
// were dropped. Sessions have no explicit destroy call; a periodic sweep
// keeps the table from growing without bound.
func (r *SessionRepo) DeleteExpired(ctx context.Context, maxAge time.Duration) (int64, error) {
    const q = `DELETE FROM checkout_sessions WHERE created_at < ?`
    res, err := r.db.ExecContext(ctx, q, time.Now().UTC().Add(-maxAge))
    if err != nil {
        return 0, fmt.Errorf("delete expired sessions: %w", err)
    }
    n, _ := res.RowsAffected()
    return n, nil
}

func (r *SessionRepo) scanOne(row *sql.Row) (*model.CheckoutSession, error) {
    var s model.CheckoutSession
    err := row.Scan(&s.ID, &s.Channel, &s.Recipient, &s.Label, &s.Message,
        &s.CollectionMint, &s.AmountLamports, &s.MarkUsed, &s.CreatedAt)
    if err == sql.ErrNoRows {
        return nil, ErrSessionNotFound
    }
    if err != nil {
        return nil, fmt.Errorf("scan session: %w", err)
    }
    return &s, nil
}
