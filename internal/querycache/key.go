package querycache

import (
	"encoding/json"
	"strconv"
)

// Key identifies a cached query. Segments are compared in order, so a
// shorter key acts as a prefix for Invalidate and Previous.
type Key []string

// NotesKey is the list query key ["notes", search, page, tag].
func NotesKey(search string, page int, tag string) Key {
	return Key{"notes", search, strconv.Itoa(page), tag}
}

// NoteKey is the detail query key ["note", id].
func NoteKey(id string) Key {
	return Key{"note", id}
}

// String is the canonical form used as the map and singleflight key.
func (k Key) String() string {
	b, _ := json.Marshal([]string(k))
	return string(b)
}

// HasPrefix reports whether p matches the leading segments of k.
func (k Key) HasPrefix(p Key) bool {
	if len(p) > len(k) {
		return false
	}
	for i := range p {
		if k[i] != p[i] {
			return false
		}
	}
	return true
}
