package domain

import (
	"fmt"
	"math"
	"sort"
)

// compareItems orders by position and breaks ties by id so that colliding
// fractional orders still sort deterministically.
func compareItems(a, b ChecklistItem) int {
	if a.Order < b.Order {
		return -1
	}
	if a.Order > b.Order {
		return 1
	}
	if a.ID < b.ID {
		return -1
	}
	if a.ID > b.ID {
		return 1
	}
	return 0
}

// SortItems sorts items in place by order, then id.
func SortItems(items []ChecklistItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return compareItems(items[i], items[j]) < 0
	})
}

// SortedItems returns a sorted copy of items.
func SortedItems(items []ChecklistItem) []ChecklistItem {
	out := cloneItems(items)
	SortItems(out)
	return out
}

// Normalize returns a copy of items renumbered 0..n-1 in their current
// relative order.
func Normalize(items []ChecklistItem) []ChecklistItem {
	out := SortedItems(items)
	for i := range out {
		out[i].Order = float64(i)
	}
	return out
}

// ValidateOrders rejects NaN and infinite positions.
func ValidateOrders(items []ChecklistItem) error {
	for _, it := range items {
		if math.IsNaN(it.Order) || math.IsInf(it.Order, 0) {
			return invalid("checklistItems.order", fmt.Errorf("%w: item %s", ErrInvalidOrder, it.ID))
		}
	}
	return nil
}

// NextOrder returns a position after every existing item.
func NextOrder(items []ChecklistItem) float64 {
	if len(items) == 0 {
		return 0
	}
	max := items[0].Order
	for _, it := range items[1:] {
		if it.Order > max {
			max = it.Order
		}
	}
	return math.Floor(max) + 1
}

// SplitResult holds both halves of a split item.
type SplitResult struct {
	Original ChecklistItem `json:"original"`
	Created  ChecklistItem `json:"created"`
}

// Split cuts the item with the given id at cursor, counted in visible runes so
// markup and entities stay intact. The original keeps the text before the
// cursor; the created item receives the remainder and a position halfway to the
// next sibling with a greater order, or half a step after the original when
// there is none. No other sibling is touched.
func Split(items []ChecklistItem, itemID string, cursor int, newID string) (SplitResult, error) {
	if err := ValidateOrders(items); err != nil {
		return SplitResult{}, err
	}
	sorted := SortedItems(items)
	idx := -1
	for i := range sorted {
		if sorted[i].ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return SplitResult{}, fmt.Errorf("checklist item %s: %w", itemID, ErrNotFound)
	}

	orig := sorted[idx]
	visible := VisibleLength(orig.Content)
	if cursor < 0 || cursor > visible {
		return SplitResult{}, invalid("cursor", fmt.Errorf("%w: %d not in [0,%d]", ErrInvalidCursor, cursor, visible))
	}

	// Siblings sharing the original's order are skipped so the created item
	// lands strictly after it.
	next := idx + 1
	for next < len(sorted) && sorted[next].Order == orig.Order {
		next++
	}
	order := orig.Order + 0.5
	if next < len(sorted) {
		order = orig.Order + (sorted[next].Order-orig.Order)/2
	}

	before, after := SplitContent(orig.Content, cursor)
	created := ChecklistItem{
		ID:      newID,
		Content: after,
		Checked: false,
		Order:   order,
		NoteID:  orig.NoteID,
	}
	orig.Content = before
	return SplitResult{Original: orig, Created: created}, nil
}

// ApplySplit returns items with the split original replaced and the created
// item appended.
func ApplySplit(items []ChecklistItem, res SplitResult) []ChecklistItem {
	out := make([]ChecklistItem, 0, len(items)+1)
	for _, it := range items {
		if it.ID == res.Original.ID {
			out = append(out, res.Original)
			continue
		}
		out = append(out, it)
	}
	return append(out, res.Created)
}
