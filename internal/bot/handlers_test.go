package bot

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armorybot/armory/internal/moderation"
)

func TestReviewMarkupActionData(t *testing.T) {
	sub := moderation.Submission{ID: "s42", UserID: 1001}

	markup := reviewMarkup(sub, 0)
	require.Len(t, markup.InlineKeyboard, 3)

	assert.Equal(t, sub.ID, markup.InlineKeyboard[0][0].Data) // approve
	assert.Equal(t, sub.ID, markup.InlineKeyboard[0][1].Data) // reject
	assert.Equal(t, sub.ID, markup.InlineKeyboard[1][0].Data) // delete
	assert.Equal(t, "1001", markup.InlineKeyboard[1][1].Data) // ban author
}

func TestReviewMarkupNextAdvancesOffset(t *testing.T) {
	sub := moderation.Submission{ID: "s1", UserID: 7}

	for offset := 0; offset < 3; offset++ {
		markup := reviewMarkup(sub, offset)
		footer := markup.InlineKeyboard[len(markup.InlineKeyboard)-1]
		require.Len(t, footer, 2)

		assert.Equal(t, btnNext.Text, footer[0].Text)
		assert.Equal(t, strconv.Itoa(offset+1), footer[0].Data)
	}
}
