package models

import (
	"strconv"
	"strings"
)

// ExtendedContext identifies where an event occurred or where a preference
// applies: a context node plus an optional component/area/item triple
// narrowing the location inside that context.
type ExtendedContext struct {
	ContextID uint64 `json:"context_id"`
	// Path is the slash-separated chain of context IDs from the root down to
	// ContextID, e.g. "/1/25/301". Used for ancestor lookups.
	Path      string `json:"path"`
	Component string `json:"component,omitempty"`
	Area      string `json:"area,omitempty"`
	ItemID    uint64 `json:"item_id,omitempty"`
}

// Ancestors returns the context IDs above this one, nearest first. The
// context's own ID is not included. A malformed path yields no ancestors.
func (c ExtendedContext) Ancestors() []uint64 {
	parts := strings.Split(strings.Trim(c.Path, "/"), "/")
	var ids []uint64
	for i := len(parts) - 1; i >= 0; i-- {
		id, err := strconv.ParseUint(parts[i], 10, 64)
		if err != nil || id == c.ContextID {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// SelfAndAncestors returns the context's own ID followed by its ancestors.
func (c ExtendedContext) SelfAndAncestors() []uint64 {
	return append([]uint64{c.ContextID}, c.Ancestors()...)
}
