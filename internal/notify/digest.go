package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/maxbolgarin/contem"
	"github.com/maxbolgarin/errm"
	"github.com/robfig/cron/v3"

	"github.com/armorybot/armory/internal/metrics"
	"github.com/armorybot/armory/internal/moderation"
	"github.com/armorybot/armory/internal/rbac"
)

const digestTimeout = time.Minute

// AdminSource lists the admins who receive the digest.
type AdminSource interface {
	GetAdminList(ctx context.Context) ([]rbac.AdminRow, error)
}

// Digest sends every admin a short moderation summary on a cron
// schedule: pending queue size, open reports and last-week totals.
type Digest struct {
	cron    *cron.Cron
	stats   *moderation.StatsCache
	admins  AdminSource
	sender  Sender
	metrics *metrics.Metrics
	log     Logger
}

// StartDigest schedules the digest with the given cron spec, running on
// the clock of loc, and registers scheduler stop in ctx.
func StartDigest(ctx contem.Context, spec string, loc *time.Location, stats *moderation.StatsCache, admins AdminSource, sender Sender, m *metrics.Metrics, log Logger) (*Digest, error) {
	if loc == nil {
		loc = time.Local
	}
	d := &Digest{
		cron:    cron.New(cron.WithLocation(loc)),
		stats:   stats,
		admins:  admins,
		sender:  sender,
		metrics: m,
		log:     log,
	}

	if _, err := d.cron.AddFunc(spec, d.Run); err != nil {
		return nil, errm.Wrap(err, "add cron func", "spec", spec)
	}

	d.cron.Start()
	ctx.AddFunc(func() { d.cron.Stop() })

	log.Info("digest scheduled", "spec", spec)
	return d, nil
}

// Run computes and delivers one digest. Exported so the scheduler and a
// manual trigger share the same path.
func (d *Digest) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), digestTimeout)
	defer cancel()

	// The digest must report live numbers, not a cached snapshot from
	// the dashboard.
	snap, err := d.stats.Stats(ctx, true)
	if err != nil {
		d.log.Error("cannot compute digest stats", "error", err)
		return
	}

	admins, err := d.admins.GetAdminList(ctx)
	if err != nil {
		d.log.Error("cannot list admins for digest", "error", err)
		return
	}

	text := formatDigest(snap)
	var sent int
	for _, admin := range admins {
		if err := d.sender.Send(admin.UserID, text); err != nil {
			d.log.Warn("cannot send digest", "error", err, "user_id", admin.UserID)
			continue
		}
		sent++
	}

	d.metrics.IncDigestRun()
	d.log.Info("digest sent", "admins", sent, "pending", snap.PendingCount)
}

func formatDigest(snap moderation.StatsSnapshot) string {
	var b strings.Builder

	b.WriteString("<b>🌅 Moderation digest</b>\n\n")
	fmt.Fprintf(&b, "Pending review: <b>%d</b>\n", snap.PendingCount)
	fmt.Fprintf(&b, "Open reports: <b>%d</b>\n", snap.PendingReports)
	fmt.Fprintf(&b, "Last 7 days: %d submitted, %d approved\n", snap.LastWeekSubmissions, snap.LastWeekApprovals)

	if snap.PendingCount == 0 && snap.PendingReports == 0 {
		b.WriteString("\nAll clear, nothing waits for review 🎉")
	}

	return b.String()
}
