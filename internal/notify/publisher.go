// Package notify publishes scan-status events to per-session realtime
// channels.  Delivery is best effort: a display surface that misses an
// update recovers on the next one or on a manual refresh, so publish
// failures are logged by callers and never escalated to the wallet.
package notify

import (
    "context"
    "encoding/json"
    "fmt"
    "log"

    "github.com/redis/go-redis/v9"
)

// EventEntryScan is the event name the display surface binds to.
const EventEntryScan = "entry-scan"

// ScanStatus is the payload of an entry-scan event.  UtilizeReady is nil
// for the intermediate "ownership checked" publish and set for the final
// "transaction readiness" publish, so the display can show a checking state
// between the two.
type ScanStatus struct {
    HasNFT       bool  `json:"hasNft"`
    UtilizeReady *bool `json:"utilizeReady,omitempty"`
}

// Publisher delivers named events to a channel.  Implementations must be
// safe for concurrent use.
type Publisher interface {
    Publish(ctx context.Context, channel, event string, payload any) error
}

// Envelope is the wire form of one event on the broker.
type Envelope struct {
    Event   string          `json:"event"`
    Key     string          `json:"key,omitempty"` // publisher app key
    Payload json.RawMessage `json:"data"`
}

// RedisPublisher publishes events over Redis pub/sub.  Channels are
// namespaced by application id so several deployments can share a broker.
type RedisPublisher struct {
    rdb   *redis.Client
    appID string
    key   string
}

func NewRedisPublisher(rdb *redis.Client, appID, key string) *RedisPublisher {
    return &RedisPublisher{rdb: rdb, appID: appID, key: key}
}

// ChannelKey returns the namespaced broker channel for a session channel
// name.
func ChannelKey(appID, channel string) string {
    return fmt.Sprintf("app:%s:%s", appID, channel)
}

func (p *RedisPublisher) Publish(ctx context.Context, channel, event string, payload any) error {
    body, err := MarshalEnvelope(event, p.key, payload)
    if err != nil {
        return err
    }
    if err := p.rdb.Publish(ctx, ChannelKey(p.appID, channel), body).Err(); err != nil {
        return fmt.Errorf("publish %s to %s: %w", event, channel, err)
    }
    return nil
}

// Subscribe binds to a session channel and delivers decoded envelopes until
// ctx is cancelled.  Used by the display client.
func (p *RedisPublisher) Subscribe(ctx context.Context, channel string) (<-chan Envelope, func()) {
    sub := p.rdb.Subscribe(ctx, ChannelKey(p.appID, channel))
    out := make(chan Envelope)
    go func() {
        defer close(out)
        for msg := range sub.Channel() {
            var env Envelope
            if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
                log.Printf("notify: bad envelope on %s: %v", channel, err)
                continue
            }
            select {
            case out <- env:
            case <-ctx.Done():
                return
            }
        }
    }()
    return out, func() { _ = sub.Close() }
}

// MarshalEnvelope builds the wire form of one event.
func MarshalEnvelope(event, key string, payload any) ([]byte, error) {
    data, err := json.Marshal(payload)
    if err != nil {
        return nil, fmt.Errorf("marshal %s payload: %w", event, err)
    }
    body, err := json.Marshal(Envelope{Event: event, Key: key, Payload: data})
    if err != nil {
        return nil, fmt.Errorf("marshal %s envelope: %w", event, err)
    }
    return body, nil
}

// LogPublisher is the degraded-mode publisher used when no broker is
// reachable at startup.  Events are written to the process log so an
// operator can still follow scans.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, channel, event string, payload any) error {
    body, _ := json.Marshal(payload)
    log.Printf("notify (no broker): channel=%s event=%s payload=%s", channel, event, body)
    return nil
}
