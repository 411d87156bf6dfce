package session

import (
	"encoding/json"
	"slices"
)

// StarredSet is an insertion-ordered set of card IDs. Values are immutable;
// Toggle returns a new set.
type StarredSet struct {
	ids []string
}

// NewStarredSet builds a set from ids, dropping duplicates.
func NewStarredSet(ids ...string) StarredSet {
	var s StarredSet
	for _, id := range ids {
		if !s.Has(id) {
			s.ids = append(s.ids, id)
		}
	}
	return s
}

// Has reports whether id is starred.
func (s StarredSet) Has(id string) bool {
	return slices.Contains(s.ids, id)
}

// Toggle returns a copy of the set with id's membership flipped.
func (s StarredSet) Toggle(id string) StarredSet {
	if i := slices.Index(s.ids, id); i >= 0 {
		return StarredSet{ids: slices.Delete(slices.Clone(s.ids), i, i+1)}
	}
	return StarredSet{ids: append(slices.Clone(s.ids), id)}
}

// IDs returns the starred IDs in the order they were starred.
func (s StarredSet) IDs() []string {
	return slices.Clone(s.ids)
}

// Len returns the number of starred cards.
func (s StarredSet) Len() int {
	return len(s.ids)
}

// MarshalJSON encodes the set as an array of IDs.
func (s StarredSet) MarshalJSON() ([]byte, error) {
	if s.ids == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.ids)
}

// UnmarshalJSON decodes an array of IDs.
func (s *StarredSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewStarredSet(ids...)
	return nil
}
