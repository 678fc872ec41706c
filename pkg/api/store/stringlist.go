package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList stores a list of strings as a JSON text column. It keeps the
// document-style set fields (categories, allowed types, allowed client ids)
// in a single column so every mutation stays one atomic row write.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}

	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshaling string list: %w", err)
	}

	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = StringList{}

		return nil
	}

	var data []byte

	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported string list column type %T", value)
	}

	if len(data) == 0 {
		*l = StringList{}

		return nil
	}

	if err := json.Unmarshal(data, l); err != nil {
		return fmt.Errorf("unmarshaling string list: %w", err)
	}

	return nil
}

// Contains reports whether s is a member of the list.
func (l StringList) Contains(s string) bool {
	for _, member := range l {
		if member == s {
			return true
		}
	}

	return false
}

// Intersects reports whether the list shares at least one member with
// other. Both empty lists do not intersect.
func (l StringList) Intersects(other []string) bool {
	for _, member := range other {
		if l.Contains(member) {
			return true
		}
	}

	return false
}
