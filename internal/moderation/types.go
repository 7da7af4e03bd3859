package moderation

import (
	"context"
	"time"
)

// Status is the review state of a user-submitted attachment build.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) String() string {
	return string(s)
}

// Submission is a user-submitted attachment build awaiting or past review.
type Submission struct {
	ID          string    `bson:"id"`
	UserID      int64     `bson:"user_id"`
	Weapon      string    `bson:"weapon"`
	Mode        string    `bson:"mode"` // br or mp
	Attachments []string  `bson:"attachments"`
	Status      Status    `bson:"status"`
	Likes       int       `bson:"likes"`
	Reports     int       `bson:"reports"`
	CreatedAt   time.Time `bson:"created_at"`
}

// Report is a user complaint about a published submission.
type Report struct {
	ID           string    `bson:"id"`
	SubmissionID string    `bson:"submission_id"`
	ReporterID   int64     `bson:"reporter_id"`
	Reason       string    `bson:"reason"`
	Resolved     bool      `bson:"resolved"`
	CreatedAt    time.Time `bson:"created_at"`
}

// StatsSnapshot holds the aggregate counters shown on the moderation
// dashboard, computed by one store query and cached as a unit.
type StatsSnapshot struct {
	TotalSubmissions int `bson:"total_submissions"`
	PendingCount     int `bson:"pending_count"`
	ApprovedCount    int `bson:"approved_count"`
	RejectedCount    int `bson:"rejected_count"`

	TotalUsers  int `bson:"total_users"`
	ActiveUsers int `bson:"active_users"`
	BannedUsers int `bson:"banned_users"`

	BRCount int `bson:"br_count"`
	MPCount int `bson:"mp_count"`

	TotalLikes     int `bson:"total_likes"`
	TotalReports   int `bson:"total_reports"`
	PendingReports int `bson:"pending_reports"`

	LastWeekSubmissions int `bson:"last_week_submissions"`
	LastWeekApprovals   int `bson:"last_week_approvals"`

	GeneratedAt time.Time `bson:"generated_at"`
}

// WeaponCount is one row of the top-weapons ranking.
type WeaponCount struct {
	Weapon string `bson:"weapon"`
	Count  int    `bson:"count"`
}

// ContributorCount is one row of the top-contributors ranking.
type ContributorCount struct {
	UserID      int64  `bson:"user_id"`
	DisplayName string `bson:"display_name"`
	Approved    int    `bson:"approved"`
}

// UserProfile is the subset of a submitter's profile the review UI shows.
type UserProfile struct {
	UserID      int64  `bson:"user_id"`
	Username    string `bson:"username"`
	DisplayName string `bson:"display_name"`
	Banned      bool   `bson:"banned"`
}

// Store is the persistence contract consumed by the moderation service
// and the stats cache: aggregate queries in, rows out.
type Store interface {
	QueryStats(ctx context.Context) (StatsSnapshot, error)
	QueryTopWeapons(ctx context.Context, limit int) ([]WeaponCount, error)
	QueryTopUsers(ctx context.Context, limit int) ([]ContributorCount, error)
	CountByStatus(ctx context.Context, status Status) (int, error)
	GetUsersBatch(ctx context.Context, userIDs []int64) ([]UserProfile, error)

	GetSubmission(ctx context.Context, id string) (Submission, bool, error)
	ListPending(ctx context.Context, limit int) ([]Submission, error)
	SetSubmissionStatus(ctx context.Context, id string, status Status) error
	DeleteSubmission(ctx context.Context, id string) error

	SetUserBanned(ctx context.Context, userID int64, banned bool) error

	ListOpenReports(ctx context.Context, limit int) ([]Report, error)
	ResolveReport(ctx context.Context, reportID string) error
}

// AuditEvent is one immutable record of a moderation action.
type AuditEvent struct {
	Action       string    `bson:"action"`
	ActorID      int64     `bson:"actor_id"`
	SubmissionID string    `bson:"submission_id,omitempty"`
	TargetUserID int64     `bson:"target_user_id,omitempty"`
	Reason       string    `bson:"reason,omitempty"`
	At           time.Time `bson:"at"`
}

// AuditLog records moderation actions, usually asynchronously.
// A failed record must never fail the moderation action itself.
type AuditLog interface {
	Record(event AuditEvent)
}
