package bot

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/exp/constraints"

	"github.com/armorybot/armory/internal/moderation"
	"github.com/armorybot/armory/internal/rbac"
)

const (
	msgAccessDenied = "You don't have access to this panel."

	msgMainMenu = "<b>Admin panel</b>\n\nChoose a section:"

	msgQueueEmpty   = "The review queue is empty. Nothing to do here."
	msgReportsEmpty = "No open reports."

	msgAskAdminID     = "Send the Telegram user id of the new admin:"
	msgAskRejectNote  = "Send a short reason for the rejection:"
	msgAskBanReason   = "Send a short reason for the ban:"
	msgAskBroadcast   = "Send the broadcast text. It will go to all active users:"
	msgBadUserID      = "That doesn't look like a user id. Send a number, e.g. 123456789."
	msgLastSuperAdmin = "Refused: that would leave the panel without a single super admin."
	msgUnknownRole    = "Unknown role."
)

func formatStats(snap moderation.StatsSnapshot) string {
	var b strings.Builder

	b.WriteString("<b>📊 Moderation statistics</b>\n\n")

	fmt.Fprintf(&b, "<b>Submissions:</b> %d\n", snap.TotalSubmissions)
	fmt.Fprintf(&b, "  pending: %d\n", snap.PendingCount)
	fmt.Fprintf(&b, "  approved: %d (%.0f%%)\n", snap.ApprovedCount, percent(snap.ApprovedCount, snap.TotalSubmissions))
	fmt.Fprintf(&b, "  rejected: %d\n\n", snap.RejectedCount)

	fmt.Fprintf(&b, "<b>By mode:</b> BR %d / MP %d\n", snap.BRCount, snap.MPCount)
	fmt.Fprintf(&b, "<b>Likes:</b> %d\n\n", snap.TotalLikes)

	fmt.Fprintf(&b, "<b>Users:</b> %d (active %d, banned %d)\n", snap.TotalUsers, snap.ActiveUsers, snap.BannedUsers)
	fmt.Fprintf(&b, "<b>Reports:</b> %d open of %d\n\n", snap.PendingReports, snap.TotalReports)

	fmt.Fprintf(&b, "<b>Last 7 days:</b> %d submitted, %d approved\n", snap.LastWeekSubmissions, snap.LastWeekApprovals)

	if !snap.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "\n<i>updated %s ago</i>", time.Since(snap.GeneratedAt).Round(time.Second))
	}

	return b.String()
}

func formatTopWeapons(rows []moderation.WeaponCount) string {
	if len(rows) == 0 {
		return "No approved builds yet."
	}

	var b strings.Builder
	b.WriteString("<b>🔫 Top weapons</b>\n\n")
	for i, row := range rows {
		fmt.Fprintf(&b, "%d. %s: %d builds\n", i+1, row.Weapon, row.Count)
	}
	return b.String()
}

func formatTopUsers(rows []moderation.ContributorCount) string {
	if len(rows) == 0 {
		return "No contributors yet."
	}

	var b strings.Builder
	b.WriteString("<b>🏆 Top contributors</b>\n\n")
	for i, row := range rows {
		name := row.DisplayName
		if name == "" {
			name = fmt.Sprintf("id%d", row.UserID)
		}
		fmt.Fprintf(&b, "%d. %s: %d approved\n", i+1, name, row.Approved)
	}
	return b.String()
}

func formatSubmission(sub moderation.Submission, queueLen int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<b>📝 Review queue</b> (%d pending)\n\n", queueLen)
	fmt.Fprintf(&b, "<b>Weapon:</b> %s (%s)\n", sub.Weapon, strings.ToUpper(sub.Mode))
	if len(sub.Attachments) > 0 {
		fmt.Fprintf(&b, "<b>Attachments:</b> %s\n", strings.Join(sub.Attachments, ", "))
	}
	fmt.Fprintf(&b, "<b>From:</b> id%d\n", sub.UserID)
	if !sub.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "<b>Submitted:</b> %s\n", sub.CreatedAt.Format("2006-01-02 15:04"))
	}
	if sub.Reports > 0 {
		fmt.Fprintf(&b, "\n⚠️ reported %d times\n", sub.Reports)
	}

	return b.String()
}

func formatReports(reports []moderation.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>🚨 Open reports</b> (%d)\n\n", len(reports))
	for i, r := range reports {
		fmt.Fprintf(&b, "%d. build <code>%s</code>", i+1, r.SubmissionID)
		if r.Reason != "" {
			fmt.Fprintf(&b, ": %s", r.Reason)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatAdminList(admins []rbac.AdminRow) string {
	if len(admins) == 0 {
		return "No admins yet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>👥 Admins</b> (%d)\n\n", len(admins))
	for _, admin := range admins {
		name := admin.DisplayName
		if name == "" {
			name = fmt.Sprintf("id%d", admin.UserID)
		}
		fmt.Fprintf(&b, "• %s: %s\n", name, strings.Join(admin.Roles, ", "))
	}
	return b.String()
}

func percent[T constraints.Integer](part, total T) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func formatRolePrompt(userID int64, roles []rbac.Role) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Choose a role for id%d:\n\n", userID)
	for _, role := range roles {
		fmt.Fprintf(&b, "%s <b>%s</b>: %s\n", role.Icon, role.DisplayName, role.Description)
	}
	return b.String()
}
