// Package moderation implements the review workflow for user-submitted
// attachment builds: approve/reject/delete, bans, reports, and the cached
// aggregate statistics the admin dashboard renders.
package moderation

import (
	"context"
	"time"

	"github.com/maxbolgarin/errm"

	"github.com/armorybot/armory/internal/cache"
)

// ErrSubmissionNotFound is returned by mutations referencing an unknown
// submission.
var ErrSubmissionNotFound = errm.New("submission not found")

// Mutation is a kind of moderation state change. Every kind declares the
// cache tags it affects in mutationTags, so adding a new derived statistic
// forces an explicit decision about which mutations must drop it.
type Mutation string

const (
	MutationApprove       Mutation = "approve"
	MutationReject        Mutation = "reject"
	MutationDelete        Mutation = "delete"
	MutationBan           Mutation = "ban"
	MutationUnban         Mutation = "unban"
	MutationResolveReport Mutation = "resolve_report"
)

// mutationTags maps each mutation kind to the aggregate tags it stales.
// One mutation usually touches several derived values at once: deleting a
// reported submission changes totals, per-status counts and the rankings.
var mutationTags = map[Mutation][]cache.Tag{
	MutationApprove:       {TagStats, TagCounts, TagTops},
	MutationReject:        {TagStats, TagCounts},
	MutationDelete:        {TagStats, TagCounts, TagTops},
	MutationBan:           {TagStats},
	MutationUnban:         {TagStats},
	MutationResolveReport: {TagStats, TagCounts},
}

// Logger is an interface for logging messages.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Service applies moderation mutations. The contract for every mutation
// is: mutate the store of record first, then invalidate the affected
// aggregates, and only if the mutation actually happened. A reader racing
// a failed mutation keeps the cached data instead of recomputing the same
// stale numbers as if they were fresh.
type Service struct {
	store Store
	stats *StatsCache
	audit AuditLog
	log   Logger
}

// NewService creates a moderation Service. audit may be nil.
func NewService(store Store, stats *StatsCache, audit AuditLog, log Logger) *Service {
	if log == nil {
		log = noopLogger{}
	}
	return &Service{
		store: store,
		stats: stats,
		audit: audit,
		log:   log,
	}
}

// StatsCache exposes the read side for the dashboard handlers.
func (s *Service) StatsCache() *StatsCache {
	return s.stats
}

// PendingQueue returns up to limit submissions awaiting review.
func (s *Service) PendingQueue(ctx context.Context, limit int) ([]Submission, error) {
	subs, err := s.store.ListPending(ctx, limit)
	if err != nil {
		return nil, errm.Wrap(err, "list pending")
	}
	return subs, nil
}

// OpenReports returns up to limit unresolved reports.
func (s *Service) OpenReports(ctx context.Context, limit int) ([]Report, error) {
	reports, err := s.store.ListOpenReports(ctx, limit)
	if err != nil {
		return nil, errm.Wrap(err, "list open reports")
	}
	return reports, nil
}

// Approve publishes a pending submission.
func (s *Service) Approve(ctx context.Context, submissionID string, reviewerID int64) error {
	return s.setStatus(ctx, submissionID, reviewerID, StatusApproved, MutationApprove)
}

// Reject declines a pending submission.
func (s *Service) Reject(ctx context.Context, submissionID string, reviewerID int64, reason string) error {
	sub, found, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return errm.Wrap(err, "get submission", "submission_id", submissionID)
	}
	if !found {
		return ErrSubmissionNotFound
	}

	if err := s.store.SetSubmissionStatus(ctx, sub.ID, StatusRejected); err != nil {
		return errm.Wrap(err, "set status", "submission_id", sub.ID)
	}

	s.afterMutation(MutationReject, AuditEvent{
		Action:       string(MutationReject),
		ActorID:      reviewerID,
		SubmissionID: sub.ID,
		Reason:       reason,
	})
	return nil
}

// DeleteSubmission removes a submission entirely, typically after a report.
func (s *Service) DeleteSubmission(ctx context.Context, submissionID string, actorID int64) error {
	_, found, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return errm.Wrap(err, "get submission", "submission_id", submissionID)
	}
	if !found {
		return ErrSubmissionNotFound
	}

	if err := s.store.DeleteSubmission(ctx, submissionID); err != nil {
		return errm.Wrap(err, "delete submission", "submission_id", submissionID)
	}

	s.afterMutation(MutationDelete, AuditEvent{
		Action:       string(MutationDelete),
		ActorID:      actorID,
		SubmissionID: submissionID,
	})
	return nil
}

// BanUser blocks a submitter from the submission system.
func (s *Service) BanUser(ctx context.Context, userID, actorID int64, reason string) error {
	if err := s.store.SetUserBanned(ctx, userID, true); err != nil {
		return errm.Wrap(err, "ban user", "user_id", userID)
	}

	s.stats.InvalidateUser(userID)
	s.afterMutation(MutationBan, AuditEvent{
		Action:       string(MutationBan),
		ActorID:      actorID,
		TargetUserID: userID,
		Reason:       reason,
	})
	return nil
}

// UnbanUser lifts a submitter's ban.
func (s *Service) UnbanUser(ctx context.Context, userID, actorID int64) error {
	if err := s.store.SetUserBanned(ctx, userID, false); err != nil {
		return errm.Wrap(err, "unban user", "user_id", userID)
	}

	s.stats.InvalidateUser(userID)
	s.afterMutation(MutationUnban, AuditEvent{
		Action:       string(MutationUnban),
		ActorID:      actorID,
		TargetUserID: userID,
	})
	return nil
}

// ResolveReport closes a report without touching the reported submission.
func (s *Service) ResolveReport(ctx context.Context, reportID string, actorID int64) error {
	if err := s.store.ResolveReport(ctx, reportID); err != nil {
		return errm.Wrap(err, "resolve report", "report_id", reportID)
	}

	s.afterMutation(MutationResolveReport, AuditEvent{
		Action:  string(MutationResolveReport),
		ActorID: actorID,
	})
	return nil
}

func (s *Service) setStatus(ctx context.Context, submissionID string, reviewerID int64, status Status, mutation Mutation) error {
	sub, found, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return errm.Wrap(err, "get submission", "submission_id", submissionID)
	}
	if !found {
		return ErrSubmissionNotFound
	}

	if err := s.store.SetSubmissionStatus(ctx, sub.ID, status); err != nil {
		return errm.Wrap(err, "set status", "submission_id", sub.ID)
	}

	s.afterMutation(mutation, AuditEvent{
		Action:       string(mutation),
		ActorID:      reviewerID,
		SubmissionID: sub.ID,
	})
	return nil
}

// afterMutation runs only for mutations that actually happened.
func (s *Service) afterMutation(mutation Mutation, event AuditEvent) {
	s.stats.InvalidateTags(mutationTags[mutation]...)

	if s.audit != nil {
		event.At = time.Now().UTC()
		s.audit.Record(event)
	}

	s.log.Debug("moderation mutation applied",
		"mutation", string(mutation),
		"actor_id", event.ActorID,
		"submission_id", event.SubmissionID,
	)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}
