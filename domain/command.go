package domain

// TaskCommandType enumerates the checklist operations exposed to the chat bot.
type TaskCommandType string

const (
	TaskAdd    TaskCommandType = "add"
	TaskEdit   TaskCommandType = "edit"
	TaskDelete TaskCommandType = "delete"
	TaskMark   TaskCommandType = "mark"
	TaskUnmark TaskCommandType = "unmark"
)

// TaskCommand is a structured checklist operation issued by the chat bot once
// its intent parser has resolved the target note and item.
type TaskCommand struct {
	Type    TaskCommandType `json:"type"`
	ItemID  string          `json:"itemId,omitempty"`
	Content string          `json:"content,omitempty"`
}

// Valid reports whether the command type is known.
func (t TaskCommandType) Valid() bool {
	switch t {
	case TaskAdd, TaskEdit, TaskDelete, TaskMark, TaskUnmark:
		return true
	}
	return false
}
