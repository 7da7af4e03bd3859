package bot

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

const maxButtonsInRow = 8

// Keyboard is a ReplyMarkup (inline keyboard) builder.
type Keyboard struct {
	buttons    [][]tele.Btn
	currentRow []tele.Btn
	footer     []tele.Btn

	rowLen int
}

// NewKeyboard creates a new keyboard builder.
// With rowLen > 0 a new row starts automatically after rowLen buttons.
func NewKeyboard(rowLen ...int) *Keyboard {
	k := &Keyboard{
		buttons:    make([][]tele.Btn, 0),
		currentRow: make([]tele.Btn, 0),
	}
	if len(rowLen) > 0 {
		k.rowLen = rowLen[0]
	}
	return k
}

// Add adds buttons to the current row, wrapping to a new row when the
// row length limit is reached.
func (k *Keyboard) Add(btns ...tele.Btn) *Keyboard {
	for _, btn := range btns {
		if len(k.currentRow) == maxButtonsInRow {
			k.StartNewRow()
		}
		if k.rowLen > 0 && len(k.currentRow) == k.rowLen {
			k.StartNewRow()
		}
		k.currentRow = append(k.currentRow, btn)
	}
	return k
}

// AddRow adds the buttons as their own row.
func (k *Keyboard) AddRow(btns ...tele.Btn) *Keyboard {
	if len(k.currentRow) > 0 {
		k.StartNewRow()
	}
	k.buttons = append(k.buttons, btns)
	return k
}

// AddFooter adds buttons to the footer row, rendered last.
func (k *Keyboard) AddFooter(btns ...tele.Btn) *Keyboard {
	k.footer = append(k.footer, btns...)
	return k
}

// StartNewRow closes the current row.
func (k *Keyboard) StartNewRow() *Keyboard {
	if len(k.currentRow) == 0 {
		return k
	}
	k.buttons = append(k.buttons, k.currentRow)
	k.currentRow = make([]tele.Btn, 0, maxButtonsInRow)
	return k
}

// CreateInlineMarkup creates an inline keyboard from the builder.
func (k *Keyboard) CreateInlineMarkup() *tele.ReplyMarkup {
	if len(k.currentRow) > 0 {
		k.StartNewRow()
	}

	out := make([][]tele.InlineButton, 0, len(k.buttons)+1)
	for _, row := range k.buttons {
		rOut := make([]tele.InlineButton, 0, len(row))
		for _, btn := range row {
			rOut = append(rOut, *btn.Inline())
		}
		out = append(out, rOut)
	}

	if len(k.footer) > 0 {
		rOut := make([]tele.InlineButton, 0, len(k.footer))
		for _, btn := range k.footer {
			rOut = append(rOut, *btn.Inline())
		}
		out = append(out, rOut)
	}

	return &tele.ReplyMarkup{InlineKeyboard: out}
}

// Inline creates an inline keyboard from the buttons with rowLength
// buttons per row.
func Inline(rowLength int, btns ...tele.Btn) *tele.ReplyMarkup {
	keyboard := NewKeyboard(rowLength)
	keyboard.Add(btns...)
	return keyboard.CreateInlineMarkup()
}

// SingleRow creates an inline keyboard with all buttons in one row.
func SingleRow(btns ...tele.Btn) *tele.ReplyMarkup {
	return NewKeyboard().Add(btns...).CreateInlineMarkup()
}

// CreateBtnData joins data items into a single callback data string,
// skipping empty items. Items are separated by '|'.
func CreateBtnData(dataList ...string) string {
	switch len(dataList) {
	case 0:
		return ""
	case 1:
		return dataList[0]
	}

	var b strings.Builder
	b.WriteString(dataList[0])
	for _, s := range dataList[1:] {
		if s == "" {
			continue
		}
		b.WriteString("|" + s)
	}
	return b.String()
}

// SplitBtnData splits a callback data string created by CreateBtnData.
func SplitBtnData(data string) []string {
	if data == "" {
		return nil
	}
	return strings.Split(data, "|")
}
