package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgListener relays PostgreSQL NOTIFY payloads into a Bus. Payloads are JSON
// encoded Events, as produced by the tasks change trigger.
type PgListener struct {
	pool    *pgxpool.Pool
	channel string
	bus     *Bus
	backoff time.Duration
}

// NewPgListener creates a listener for channel that publishes into bus.
func NewPgListener(pool *pgxpool.Pool, channel string, bus *Bus) *PgListener {
	return &PgListener{pool: pool, channel: channel, bus: bus, backoff: 2 * time.Second}
}

// Run listens until ctx is cancelled, reconnecting after connection errors.
func (l *PgListener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[warn] realtime: listener on %s stopped: %v; reconnecting", l.channel, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.backoff):
		}
	}
}

func (l *PgListener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	log.Printf("[info] realtime: listening on %s", l.channel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		e, err := DecodeNotification([]byte(n.Payload))
		if err != nil {
			log.Printf("[warn] realtime: %v", err)
			continue
		}
		l.bus.Publish(e)
	}
}

// DecodeNotification parses a NOTIFY payload into an Event.
func DecodeNotification(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, fmt.Errorf("decode notification: %w", err)
	}
	switch e.Type {
	case Insert, Update, Delete:
	default:
		return Event{}, fmt.Errorf("decode notification: unknown type %q", e.Type)
	}
	if e.Table == "" {
		return Event{}, errors.New("decode notification: missing table")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return e, nil
}
