// Package auth answers whether a user may run admin commands (start, stop, reset).
package auth

import "strings"

// StaticAdmins is a fixed admin set, typically loaded from ADMIN_IDS.
type StaticAdmins struct {
	ids map[string]struct{}
}

func NewStaticAdmins(ids []string) *StaticAdmins {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	return &StaticAdmins{ids: set}
}

// ParseAdminIDs splits a comma-separated list such as "123, 456".
func ParseAdminIDs(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (a *StaticAdmins) IsAdmin(userID string) bool {
	if a == nil {
		return false
	}
	_, ok := a.ids[userID]
	return ok
}

// Len is the number of configured admins.
func (a *StaticAdmins) Len() int {
	if a == nil {
		return 0
	}
	return len(a.ids)
}
