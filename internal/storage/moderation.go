package storage

import (
	"context"
	"time"

	"github.com/joomcode/errorx"
	"github.com/maxbolgarin/errm"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/armorybot/armory/internal/moderation"
)

// ModerationRepository persists submissions, reports and user flags and
// computes the aggregate statistics the dashboard shows. The expensive
// aggregates are meant to sit behind the stats cache, not to be called on
// every update.
type ModerationRepository struct {
	subs    *Collection
	reports *Collection
	users   *Collection
}

// NewModerationRepository creates a repository over the submission,
// report and user collections.
func NewModerationRepository(db *MongoDB) *ModerationRepository {
	return &ModerationRepository{
		subs:    db.Collection(SubmissionsCollectionName),
		reports: db.Collection(ReportsCollectionName),
		users:   db.Collection(UsersCollectionName),
	}
}

// EnsureIndexes creates the indexes the moderation queries rely on.
func (r *ModerationRepository) EnsureIndexes(ctx context.Context) error {
	if err := r.subs.CreateUniqueIndex(ctx, "id"); err != nil {
		return errm.Wrap(err, "submissions index")
	}
	if err := r.subs.CreateIndex(ctx, "status", "created_at"); err != nil {
		return errm.Wrap(err, "submissions status index")
	}
	if err := r.reports.CreateUniqueIndex(ctx, "id"); err != nil {
		return errm.Wrap(err, "reports index")
	}
	return nil
}

// QueryStats computes the full dashboard snapshot with one pass of
// counts per collection.
func (r *ModerationRepository) QueryStats(ctx context.Context) (moderation.StatsSnapshot, error) {
	var (
		snap    moderation.StatsSnapshot
		weekAgo = time.Now().UTC().AddDate(0, 0, -7)
	)

	counts := []struct {
		dest   *int
		coll   *Collection
		filter Filter
	}{
		{&snap.TotalSubmissions, r.subs, nil},
		{&snap.PendingCount, r.subs, Filter{"status": moderation.StatusPending}},
		{&snap.ApprovedCount, r.subs, Filter{"status": moderation.StatusApproved}},
		{&snap.RejectedCount, r.subs, Filter{"status": moderation.StatusRejected}},
		{&snap.BRCount, r.subs, Filter{"status": moderation.StatusApproved, "mode": "br"}},
		{&snap.MPCount, r.subs, Filter{"status": moderation.StatusApproved, "mode": "mp"}},
		{&snap.TotalUsers, r.users, nil},
		{&snap.ActiveUsers, r.users, Filter{"banned": false}},
		{&snap.BannedUsers, r.users, Filter{"banned": true}},
		{&snap.TotalReports, r.reports, nil},
		{&snap.PendingReports, r.reports, Filter{"resolved": false}},
	}
	for _, c := range counts {
		n, err := c.coll.Count(ctx, c.filter)
		if err != nil {
			return moderation.StatsSnapshot{}, errm.Wrap(err, "count")
		}
		*c.dest = int(n)
	}

	lastWeek, err := r.subs.CountFrom(ctx, nil, Filter{"created_at": weekAgo})
	if err != nil {
		return moderation.StatsSnapshot{}, errm.Wrap(err, "count last week")
	}
	snap.LastWeekSubmissions = int(lastWeek)

	lastWeekApproved, err := r.subs.CountFrom(ctx,
		Filter{"status": moderation.StatusApproved}, Filter{"created_at": weekAgo})
	if err != nil {
		return moderation.StatsSnapshot{}, errm.Wrap(err, "count last week approved")
	}
	snap.LastWeekApprovals = int(lastWeekApproved)

	var likes []struct {
		Total int `bson:"total"`
	}
	err = r.subs.Aggregate(ctx, &likes, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$likes"}}}},
	})
	if err != nil {
		return moderation.StatsSnapshot{}, errm.Wrap(err, "sum likes")
	}
	if len(likes) > 0 {
		snap.TotalLikes = likes[0].Total
	}

	snap.GeneratedAt = time.Now().UTC()
	return snap, nil
}

// QueryTopWeapons returns the weapons with the most approved builds.
func (r *ModerationRepository) QueryTopWeapons(ctx context.Context, limit int) ([]moderation.WeaponCount, error) {
	var rows []struct {
		Weapon string `bson:"_id"`
		Count  int    `bson:"count"`
	}
	err := r.subs.Aggregate(ctx, &rows, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": moderation.StatusApproved}}},
		{{Key: "$group", Value: bson.M{"_id": "$weapon", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.M{"count": -1}}},
		{{Key: "$limit", Value: limit}},
	})
	if err != nil {
		return nil, errm.Wrap(err, "top weapons")
	}

	out := make([]moderation.WeaponCount, 0, len(rows))
	for _, row := range rows {
		out = append(out, moderation.WeaponCount{Weapon: row.Weapon, Count: row.Count})
	}
	return out, nil
}

// QueryTopUsers returns the submitters with the most approved builds,
// with display names resolved from the users collection.
func (r *ModerationRepository) QueryTopUsers(ctx context.Context, limit int) ([]moderation.ContributorCount, error) {
	var rows []struct {
		UserID   int64 `bson:"_id"`
		Approved int   `bson:"approved"`
	}
	err := r.subs.Aggregate(ctx, &rows, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": moderation.StatusApproved}}},
		{{Key: "$group", Value: bson.M{"_id": "$user_id", "approved": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.M{"approved": -1}}},
		{{Key: "$limit", Value: limit}},
	})
	if err != nil {
		return nil, errm.Wrap(err, "top users")
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.UserID)
	}
	names := make(map[int64]string, len(ids))
	if len(ids) > 0 {
		profiles, err := r.GetUsersBatch(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, p := range profiles {
			names[p.UserID] = p.DisplayName
		}
	}

	out := make([]moderation.ContributorCount, 0, len(rows))
	for _, row := range rows {
		out = append(out, moderation.ContributorCount{
			UserID:      row.UserID,
			DisplayName: names[row.UserID],
			Approved:    row.Approved,
		})
	}
	return out, nil
}

func (r *ModerationRepository) CountByStatus(ctx context.Context, status moderation.Status) (int, error) {
	count, err := r.subs.Count(ctx, Filter{"status": status})
	if err != nil {
		return 0, errm.Wrap(err, "count by status", "status", status.String())
	}
	return int(count), nil
}

func (r *ModerationRepository) GetUsersBatch(ctx context.Context, userIDs []int64) ([]moderation.UserProfile, error) {
	var profiles []moderation.UserProfile
	err := r.users.FindIn(ctx, &profiles, nil, Filter{"user_id": userIDs})
	if err != nil {
		return nil, errm.Wrap(err, "find users batch")
	}
	return profiles, nil
}

func (r *ModerationRepository) GetSubmission(ctx context.Context, id string) (moderation.Submission, bool, error) {
	var sub moderation.Submission
	err := r.subs.FindOne(ctx, &sub, Filter{"id": id})
	switch {
	case errorx.IsNotFound(err):
		return moderation.Submission{}, false, nil
	case err != nil:
		return moderation.Submission{}, false, errm.Wrap(err, "find submission", "id", id)
	}
	return sub, true, nil
}

// ListPending returns the review queue, oldest submissions first.
func (r *ModerationRepository) ListPending(ctx context.Context, limit int) ([]moderation.Submission, error) {
	var subs []moderation.Submission
	err := r.subs.FindManySorted(ctx, &subs,
		Filter{"status": moderation.StatusPending}, "created_at", 1, limit)
	if err != nil {
		return nil, errm.Wrap(err, "list pending")
	}
	return subs, nil
}

func (r *ModerationRepository) SetSubmissionStatus(ctx context.Context, id string, status moderation.Status) error {
	err := r.subs.SetFields(ctx, Filter{"id": id}, Updates{"status": status})
	if err != nil {
		return errm.Wrap(err, "set status", "id", id)
	}
	return nil
}

func (r *ModerationRepository) DeleteSubmission(ctx context.Context, id string) error {
	err := r.subs.Delete(ctx, Filter{"id": id})
	switch {
	case errorx.IsNotFound(err):
		return nil
	case err != nil:
		return errm.Wrap(err, "delete submission", "id", id)
	}
	return nil
}

func (r *ModerationRepository) SetUserBanned(ctx context.Context, userID int64, banned bool) error {
	err := r.users.SetFields(ctx, Filter{"user_id": userID}, Updates{"banned": banned})
	if err != nil {
		return errm.Wrap(err, "set banned", "user_id", userID)
	}
	return nil
}

// ListActiveUserIDs returns the ids of all users that are not banned.
// Used by broadcasts: banned users must not receive them.
func (r *ModerationRepository) ListActiveUserIDs(ctx context.Context) ([]int64, error) {
	var profiles []moderation.UserProfile
	err := r.users.FindMany(ctx, &profiles, Filter{"banned": false})
	if err != nil {
		return nil, errm.Wrap(err, "find active users")
	}

	ids := make([]int64, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.UserID)
	}
	return ids, nil
}

// ListOpenReports returns unresolved reports, oldest first.
func (r *ModerationRepository) ListOpenReports(ctx context.Context, limit int) ([]moderation.Report, error) {
	var reports []moderation.Report
	err := r.reports.FindManySorted(ctx, &reports,
		Filter{"resolved": false}, "created_at", 1, limit)
	if err != nil {
		return nil, errm.Wrap(err, "list open reports")
	}
	return reports, nil
}

func (r *ModerationRepository) ResolveReport(ctx context.Context, reportID string) error {
	err := r.reports.SetFields(ctx, Filter{"id": reportID}, Updates{"resolved": true})
	if err != nil {
		return errm.Wrap(err, "resolve report", "id", reportID)
	}
	return nil
}
