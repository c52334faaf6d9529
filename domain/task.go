package domain

import "time"

// ChecklistItem is a single line of a note's checklist.
type ChecklistItem struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Checked bool    `json:"checked"`
	Order   float64 `json:"order"`
	NoteID  string  `json:"noteId,omitempty"`
}

// Note is a sticky note on a board. Notes that carry checklist items derive
// Done from the checklist; plain notes use Content.
type Note struct {
	ID             string          `json:"id"`
	BoardID        string          `json:"boardId"`
	Content        string          `json:"content"`
	Done           bool            `json:"done"`
	ChecklistItems []ChecklistItem `json:"checklistItems"`
	SlackMessageID *string         `json:"slackMessageId,omitempty"`
	ArchivedAt     *time.Time      `json:"archivedAt,omitempty"`
	CreatedBy      string          `json:"createdBy,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// DeriveDone reports whether every item is checked. An empty list is never done.
func DeriveDone(items []ChecklistItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, it := range items {
		if !it.Checked {
			return false
		}
	}
	return true
}

func cloneItems(items []ChecklistItem) []ChecklistItem {
	if items == nil {
		return nil
	}
	out := make([]ChecklistItem, len(items))
	copy(out, items)
	return out
}
