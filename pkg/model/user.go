package model

// UserInfo is what the directory knows about a chat user.
type UserInfo struct {
	ID          string
	DisplayName string
	Email       string
	Groups      []GroupRef
}

// GroupIDs returns the ids of the groups the user is a member of, in
// directory order.
func (u *UserInfo) GroupIDs() []string {
	ids := make([]string, 0, len(u.Groups))
	for _, g := range u.Groups {
		ids = append(ids, g.ID)
	}
	return ids
}
