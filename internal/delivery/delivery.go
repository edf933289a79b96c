// Package delivery implements the heartbeat scheduler's "announce" delivery
// policy (§4.3): publishing a job's outcome to a NATS subject so any
// subscriber (a chat surface, a dashboard) can pick it up. Grounded on
// ODSapper-CLIAIRMONITOR's internal/nats/client.go (connection options,
// reconnect handling, PublishJSON), trimmed to the publish-only surface the
// scheduler needs.
package delivery

import (
	"context"
	"encoding/json"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/Najia-afk/aria-core/pkg/errs"
)

// Announcer is the subset of delivery behavior the scheduler depends on.
type Announcer interface {
	Announce(ctx context.Context, subject string, payload any) error
}

// NoopAnnouncer implements the "none" delivery policy.
type NoopAnnouncer struct{}

func (NoopAnnouncer) Announce(ctx context.Context, subject string, payload any) error { return nil }

// NATSAnnouncer publishes job outcomes to a NATS subject.
type NATSAnnouncer struct {
	conn *nats.Conn
}

// NewNATSAnnouncer connects to url with reconnect handling matching the
// pack's established client pattern.
func NewNATSAnnouncer(url, clientID string) (*NATSAnnouncer, error) {
	conn, err := nats.Connect(url,
		nats.Name(clientID),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, errs.Unavailable("connect to nats at %q: %v", url, err)
	}
	return &NATSAnnouncer{conn: conn}, nil
}

// Announce marshals payload and publishes it to subject. ctx is accepted
// for interface symmetry with the rest of the core's I/O surface; nats.go's
// Publish is fire-and-forget and does not itself block on ctx.
func (a *NATSAnnouncer) Announce(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errs.Internal(err, "marshal announce payload for %q", subject)
	}
	if err := a.conn.Publish(subject, data); err != nil {
		return errs.Unavailable("publish to %q: %v", subject, err)
	}
	return nil
}

// Close closes the underlying connection.
func (a *NATSAnnouncer) Close() {
	if a.conn != nil {
		a.conn.Close()
	}
}
