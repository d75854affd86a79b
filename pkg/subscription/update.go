package subscription

import (
	"maps"
	"slices"
)

// ItemUpdate is one update of an item, or of a key in COMMAND mode. Values
// are *string: nil is a null value. The update is immutable.
type ItemUpdate struct {
	itemName   string
	itemPos    int
	isSnapshot bool

	// names maps positions to field names, nil for schema subscriptions.
	names []string

	values  map[int]*string
	changed map[int]bool
}

func newItemUpdate(itemName string, itemPos int, snapshot bool, names []string, values map[int]*string, changed []int) *ItemUpdate {
	u := &ItemUpdate{
		itemName:   itemName,
		itemPos:    itemPos,
		isSnapshot: snapshot,
		names:      names,
		values:     values,
		changed:    make(map[int]bool, len(changed)),
	}
	for _, p := range changed {
		u.changed[p] = true
	}
	return u
}

// ItemName returns the item name, empty for group subscriptions.
func (u *ItemUpdate) ItemName() string { return u.itemName }

// ItemPos returns the 1-based item position.
func (u *ItemUpdate) ItemPos() int { return u.itemPos }

// IsSnapshot reports whether the update belongs to the snapshot.
func (u *ItemUpdate) IsSnapshot() bool { return u.isSnapshot }

// Value returns the value at a 1-based field position. It returns nil both
// for null values and for values never received.
func (u *ItemUpdate) Value(pos int) *string { return u.values[pos] }

// ValueByName returns the value of a named field.
func (u *ItemUpdate) ValueByName(name string) *string {
	if p := u.position(name); p > 0 {
		return u.values[p]
	}
	return nil
}

// HasValue reports whether a value, possibly null, was ever received at pos.
func (u *ItemUpdate) HasValue(pos int) bool {
	_, ok := u.values[pos]
	return ok
}

// IsValueChanged reports whether the field at pos changed in this update.
func (u *ItemUpdate) IsValueChanged(pos int) bool { return u.changed[pos] }

// IsValueChangedByName reports whether a named field changed.
func (u *ItemUpdate) IsValueChangedByName(name string) bool {
	return u.changed[u.position(name)]
}

// FieldsByPosition returns every value received so far, by position.
func (u *ItemUpdate) FieldsByPosition() map[int]*string {
	return maps.Clone(u.values)
}

// ChangedFieldsByPosition returns the values changed by this update.
func (u *ItemUpdate) ChangedFieldsByPosition() map[int]*string {
	out := make(map[int]*string, len(u.changed))
	for p := range u.changed {
		out[p] = u.values[p]
	}
	return out
}

// Fields returns every value received so far, by field name. It is empty
// for schema subscriptions.
func (u *ItemUpdate) Fields() map[string]*string {
	out := make(map[string]*string, len(u.values))
	for p, v := range u.values {
		if name := u.name(p); name != "" {
			out[name] = v
		}
	}
	return out
}

// ChangedFields returns the values changed by this update, by field name.
func (u *ItemUpdate) ChangedFields() map[string]*string {
	out := make(map[string]*string, len(u.changed))
	for p := range u.changed {
		if name := u.name(p); name != "" {
			out[name] = u.values[p]
		}
	}
	return out
}

func (u *ItemUpdate) position(name string) int {
	return slices.Index(u.names, name) + 1
}

func (u *ItemUpdate) name(pos int) string {
	if pos >= 1 && pos <= len(u.names) {
		return u.names[pos-1]
	}
	return ""
}
