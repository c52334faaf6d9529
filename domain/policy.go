package domain

import "strings"

// Action is the externally visible kind of a checklist transition.
type Action string

const (
	ActionAdded     Action = "added"
	ActionCompleted Action = "completed"
	ActionReopened  Action = "reopened"
)

// Event is a notification-eligible transition of one item.
type Event struct {
	ItemID  string `json:"itemId"`
	Action  Action `json:"action"`
	Content string `json:"content"`
}

// Events lists the notification-eligible transitions of the change set:
// created items are "added", checked flips are "completed" or "reopened".
// Content edits, reorders and deletions never notify, nor do items whose
// content is blank.
func (cs ChangeSet) Events() []Event {
	events := make([]Event, 0, len(cs.Created)+len(cs.Updated))
	for _, it := range cs.Created {
		if !HasValidContent(it.Content) {
			continue
		}
		events = append(events, Event{ItemID: it.ID, Action: ActionAdded, Content: it.Content})
	}
	for _, u := range cs.Updated {
		if u.OrderOnly || !u.CheckedChanged() || !HasValidContent(u.Item.Content) {
			continue
		}
		action := ActionReopened
		if !u.Previous.Checked && u.Item.Checked {
			action = ActionCompleted
		}
		events = append(events, Event{ItemID: u.Item.ID, Action: action, Content: u.Item.Content})
	}
	return events
}

// HasValidContent reports whether content carries anything besides whitespace.
func HasValidContent(content string) bool {
	return strings.TrimSpace(content) != ""
}
