// Package bot implements the conversational surface of the report bot: the
// interaction router that turns inbound messages and button presses into
// report generation and navigation, the navigation keyboard, the callback
// payload codec, and the Telegram transport adapter.
package bot

import (
	"strconv"

	"github.com/tbourn/go-report-bot/internal/domain"
)

// Keyboard labels.
const (
	LabelPrev   = "<<"
	LabelNext   = ">>"
	LabelDelete = "🗑️ Delete"
)

// BuildKeyboard returns the navigation controls for page of count pages of
// the report identified by queryID.
//
// With more than one page the first row holds previous, a non-actionable
// "page/count" label, and next, both wrapping around the ends. The delete
// control is always present in its own row.
func BuildKeyboard(queryID string, page, count int) domain.Keyboard {
	var kb domain.Keyboard
	if count > 1 {
		page = ((page % count) + count) % count
		prev := (page - 1 + count) % count
		next := (page + 1) % count
		kb.Rows = append(kb.Rows, []domain.Button{
			{Text: LabelPrev, Data: PageData(queryID, prev)},
			{Text: strconv.Itoa(page+1) + "/" + strconv.Itoa(count), Data: DataNoop},
			{Text: LabelNext, Data: PageData(queryID, next)},
		})
	}
	kb.Rows = append(kb.Rows, []domain.Button{{Text: LabelDelete, Data: DataDelete}})
	return kb
}
