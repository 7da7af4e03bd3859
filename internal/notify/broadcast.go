// Package notify delivers outbound messages: admin-initiated broadcasts
// to all active users and the scheduled moderation digest for admins.
package notify

import (
	"context"

	"github.com/maxbolgarin/contem"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
	"github.com/panjf2000/ants/v2"

	"github.com/armorybot/armory/internal/metrics"
)

const defaultBroadcastWorkers = 8

// Logger is an interface for logging messages.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Sender delivers one message to one user. Implemented by the bot.
type Sender interface {
	Send(userID int64, msg string, options ...any) error
}

// UserSource lists the users eligible for broadcasts.
type UserSource interface {
	ListActiveUserIDs(ctx context.Context) ([]int64, error)
}

// Broadcaster fans a message out to every active user through a bounded
// worker pool, so a large user base never blocks the admin's handler and
// never floods the Telegram API from unbounded goroutines.
type Broadcaster struct {
	pool    *ants.Pool
	users   UserSource
	sender  Sender
	metrics *metrics.Metrics
	log     Logger
}

// NewBroadcaster creates a broadcaster with the given number of
// concurrent senders and registers pool release in ctx.
func NewBroadcaster(ctx contem.Context, sender Sender, users UserSource, m *metrics.Metrics, log Logger, workers int) (*Broadcaster, error) {
	pool, err := ants.NewPool(lang.Check(workers, defaultBroadcastWorkers), ants.WithPreAlloc(true))
	if err != nil {
		return nil, errm.Wrap(err, "new pool")
	}
	ctx.AddFunc(pool.Release)

	return &Broadcaster{
		pool:    pool,
		users:   users,
		sender:  sender,
		metrics: m,
		log:     log,
	}, nil
}

// Broadcast queues the text for delivery to every active user and
// returns how many deliveries were queued. Individual send failures are
// logged and counted, they do not abort the broadcast.
func (b *Broadcaster) Broadcast(ctx context.Context, text string) (int, error) {
	ids, err := b.users.ListActiveUserIDs(ctx)
	if err != nil {
		return 0, errm.Wrap(err, "list users")
	}

	for _, id := range ids {
		id := id
		err := b.pool.Submit(func() {
			if err := b.sender.Send(id, text); err != nil {
				b.metrics.IncError("broadcast_send")
				b.log.Warn("cannot send broadcast message", "error", err, "user_id", id)
				return
			}
			b.metrics.IncBroadcastMessage()
		})
		if err != nil {
			return 0, errm.Wrap(err, "submit")
		}
	}

	b.log.Info("broadcast queued", "users", len(ids))
	return len(ids), nil
}
