package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/armorybot/armory/internal/moderation"
)

func TestFormatDigest(t *testing.T) {
	text := formatDigest(moderation.StatsSnapshot{
		PendingCount:        7,
		PendingReports:      2,
		LastWeekSubmissions: 40,
		LastWeekApprovals:   31,
	})

	assert.Contains(t, text, "Pending review: <b>7</b>")
	assert.Contains(t, text, "Open reports: <b>2</b>")
	assert.Contains(t, text, "40 submitted, 31 approved")
	assert.NotContains(t, text, "All clear")
}

func TestFormatDigestAllClear(t *testing.T) {
	text := formatDigest(moderation.StatsSnapshot{LastWeekSubmissions: 5})

	assert.Contains(t, text, "Pending review: <b>0</b>")
	assert.Contains(t, text, "All clear")
}
