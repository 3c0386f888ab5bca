package models

import (
	"encoding/json"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// UserSet is a presence set of user ids. It is persisted as a {id: true}
// document so existing like maps keep decoding.
type UserSet map[string]struct{}

// NewUserSet builds a set from the given ids.
func NewUserSet(ids ...string) UserSet {
	set := make(UserSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports whether the id is a member.
func (s UserSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Toggle flips membership of id and reports whether it is now a member.
func (s *UserSet) Toggle(id string) bool {
	if *s == nil {
		*s = make(UserSet)
	}
	if _, ok := (*s)[id]; ok {
		delete(*s, id)
		return false
	}
	(*s)[id] = struct{}{}
	return true
}

// Len returns the number of members.
func (s UserSet) Len() int {
	return len(s)
}

// IDs returns the members in sorted order.
func (s UserSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s UserSet) asMap() map[string]bool {
	out := make(map[string]bool, len(s))
	for id := range s {
		out[id] = true
	}
	return out
}

func (s *UserSet) fromMap(in map[string]bool) {
	set := make(UserSet, len(in))
	for id, present := range in {
		if present {
			set[id] = struct{}{}
		}
	}
	*s = set
}

// MarshalBSONValue stores the set as an embedded document.
func (s UserSet) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(s.asMap())
}

// UnmarshalBSONValue accepts an embedded document or null.
func (s *UserSet) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t == bsontype.Null || t == bsontype.Undefined {
		*s = make(UserSet)
		return nil
	}
	var in map[string]bool
	if err := (bson.RawValue{Type: t, Value: data}).Unmarshal(&in); err != nil {
		return err
	}
	s.fromMap(in)
	return nil
}

// MarshalJSON renders the set as {"id": true}.
func (s UserSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.asMap())
}

// UnmarshalJSON parses {"id": true}.
func (s *UserSet) UnmarshalJSON(data []byte) error {
	var in map[string]bool
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	s.fromMap(in)
	return nil
}
