package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/armorybot/armory/internal/moderation"
	"github.com/armorybot/armory/internal/rbac"
)

func TestFormatStats(t *testing.T) {
	snap := moderation.StatsSnapshot{
		TotalSubmissions: 120,
		PendingCount:     5,
		ApprovedCount:    100,
		RejectedCount:    15,
		BRCount:          60,
		MPCount:          40,
		TotalUsers:       500,
		BannedUsers:      3,
		GeneratedAt:      time.Now(),
	}

	out := formatStats(snap)
	assert.Contains(t, out, "120")
	assert.Contains(t, out, "pending: 5")
	assert.Contains(t, out, "BR 60 / MP 40")
	assert.Contains(t, out, "approved: 100 (83%)")
	assert.Contains(t, out, "updated")
}

func TestFormatTopWeapons(t *testing.T) {
	assert.Contains(t, formatTopWeapons(nil), "No approved builds")

	out := formatTopWeapons([]moderation.WeaponCount{
		{Weapon: "ak117", Count: 12},
		{Weapon: "m4", Count: 7},
	})
	assert.Contains(t, out, "1. ak117: 12 builds")
	assert.Contains(t, out, "2. m4: 7 builds")
}

func TestFormatTopUsers(t *testing.T) {
	out := formatTopUsers([]moderation.ContributorCount{
		{UserID: 10, DisplayName: "alice", Approved: 4},
		{UserID: 11, Approved: 2},
	})
	assert.Contains(t, out, "alice: 4 approved")

	// Falls back to the id when no display name is stored.
	assert.Contains(t, out, "id11: 2 approved")
}

func TestFormatSubmission(t *testing.T) {
	sub := moderation.Submission{
		ID:          "s1",
		UserID:      10,
		Weapon:      "ak117",
		Mode:        "br",
		Attachments: []string{"scope", "grip"},
		Reports:     2,
	}

	out := formatSubmission(sub, 5)
	assert.Contains(t, out, "(5 pending)")
	assert.Contains(t, out, "ak117 (BR)")
	assert.Contains(t, out, "scope, grip")
	assert.Contains(t, out, "reported 2 times")
}

func TestFormatAdminList(t *testing.T) {
	assert.Contains(t, formatAdminList(nil), "No admins")

	out := formatAdminList([]rbac.AdminRow{
		{UserID: 1, DisplayName: "root", Roles: []string{"super_admin"}},
		{UserID: 2, Roles: []string{"mp_admin", "support_admin"}},
	})
	assert.Contains(t, out, "root: super_admin")
	assert.Contains(t, out, "id2: mp_admin, support_admin")
}
