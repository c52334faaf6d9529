package domain

// ItemSnapshot is the prior state of an updated item.
type ItemSnapshot struct {
	Content string  `json:"content"`
	Checked bool    `json:"checked"`
	Order   float64 `json:"order"`
}

// ItemUpdate is an item present on both sides of a diff with at least one
// field changed. OrderOnly marks pure reorders, which never notify.
type ItemUpdate struct {
	Item      ChecklistItem `json:"item"`
	Previous  ItemSnapshot  `json:"previous"`
	OrderOnly bool          `json:"orderOnly"`
}

// CheckedChanged reports whether the update flipped the checked flag.
func (u ItemUpdate) CheckedChanged() bool {
	return u.Previous.Checked != u.Item.Checked
}

// ChangeSet classifies a checklist update relative to the previous snapshot.
// It is built per request and never stored.
type ChangeSet struct {
	Created []ChecklistItem `json:"created"`
	Updated []ItemUpdate    `json:"updated"`
	Deleted []ChecklistItem `json:"deleted"`
}

// Empty reports whether the change set carries no changes.
func (cs ChangeSet) Empty() bool {
	return len(cs.Created) == 0 && len(cs.Updated) == 0 && len(cs.Deleted) == 0
}

// Diff compares two snapshots by item id. Output buckets follow item order of
// their source snapshot.
func Diff(previous, next []ChecklistItem) ChangeSet {
	prevByID := make(map[string]ChecklistItem, len(previous))
	for _, it := range previous {
		prevByID[it.ID] = it
	}
	nextIDs := make(map[string]struct{}, len(next))

	var cs ChangeSet
	for _, it := range SortedItems(next) {
		nextIDs[it.ID] = struct{}{}
		prev, ok := prevByID[it.ID]
		if !ok {
			cs.Created = append(cs.Created, it)
			continue
		}
		contentChanged := prev.Content != it.Content
		checkedChanged := prev.Checked != it.Checked
		orderChanged := prev.Order != it.Order
		if !contentChanged && !checkedChanged && !orderChanged {
			continue
		}
		cs.Updated = append(cs.Updated, ItemUpdate{
			Item:      it,
			Previous:  ItemSnapshot{Content: prev.Content, Checked: prev.Checked, Order: prev.Order},
			OrderOnly: orderChanged && !contentChanged && !checkedChanged,
		})
	}
	for _, it := range SortedItems(previous) {
		if _, ok := nextIDs[it.ID]; !ok {
			cs.Deleted = append(cs.Deleted, it)
		}
	}
	return cs
}
