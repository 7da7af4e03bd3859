package storage

import (
	"context"

	"github.com/maxbolgarin/contem"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/gorder"

	"github.com/armorybot/armory/internal/moderation"
)

const auditQueue = "audit"

// AuditWriter records moderation actions asynchronously through an
// ordered task queue, so a slow or flapping database never delays the
// moderation action itself. Failed writes are retried by the queue.
type AuditWriter struct {
	coll  *Collection
	queue *gorder.Gorder[string]
}

// NewAuditWriter creates an audit writer and registers its shutdown in ctx.
func NewAuditWriter(ctx contem.Context, db *MongoDB, workers int, lg gorder.Logger) *AuditWriter {
	q := gorder.NewWithOptions[string](ctx, gorder.Options{
		Workers:         workers,
		Log:             lg,
		ThrowOnShutdown: true,
		Retries:         10,
	})
	ctx.Add(q.Shutdown)

	return &AuditWriter{
		coll:  db.Collection(AuditCollectionName),
		queue: q,
	}
}

// Record queues an insert of the audit event. It never blocks on the
// database and never returns an error to the caller.
func (w *AuditWriter) Record(event moderation.AuditEvent) {
	w.queue.Push(auditQueue, "audit_"+event.Action, func(ctx context.Context) error {
		return w.coll.Insert(ctx, event)
	})
}

// Recent returns the latest audit events, newest first.
func (w *AuditWriter) Recent(ctx context.Context, limit int) ([]moderation.AuditEvent, error) {
	var events []moderation.AuditEvent
	err := w.coll.FindManySorted(ctx, &events, nil, "at", -1, limit)
	if err != nil {
		return nil, errm.Wrap(err, "find audit events")
	}
	return events, nil
}
