package model

// Wildcard is the reserved notebook id of the admin-wildcard entry and the
// literal open-group marker inside allowed_groups.
const Wildcard = "*"

// GroupRef identifies a directory group. Only ID takes part in authorization;
// DisplayName is for logs and UI.
type GroupRef struct {
	ID          string
	DisplayName string
}

type groupRuleKind int

const (
	groupRuleRef groupRuleKind = iota
	groupRuleWildcard
)

// GroupRule is one element of a notebook's allowed_groups: either the open
// wildcard or a reference to a single group.
type GroupRule struct {
	kind  groupRuleKind
	group GroupRef
}

// AnyGroup returns the open wildcard rule.
func AnyGroup() GroupRule {
	return GroupRule{kind: groupRuleWildcard}
}

// Group returns a rule matching exactly one group id.
func Group(id, displayName string) GroupRule {
	return GroupRule{kind: groupRuleRef, group: GroupRef{ID: id, DisplayName: displayName}}
}

// IsWildcard reports whether the rule grants access to every user.
func (r GroupRule) IsWildcard() bool {
	return r.kind == groupRuleWildcard
}

// Ref returns the referenced group. ok is false for the wildcard rule.
func (r GroupRule) Ref() (GroupRef, bool) {
	if r.kind != groupRuleRef {
		return GroupRef{}, false
	}
	return r.group, true
}

func (r GroupRule) String() string {
	if r.IsWildcard() {
		return Wildcard
	}
	return r.group.ID
}

// NotebookACL is a single policy entry.
type NotebookACL struct {
	ID            string
	Name          string
	Description   string
	AllowedGroups []GroupRule
}

// IsAdminEntry reports whether the entry is the admin-wildcard pseudo-notebook.
func (n *NotebookACL) IsAdminEntry() bool {
	return n.ID == Wildcard
}

// Policy is a fully parsed and validated access-control document. A Policy is
// never mutated after it has been built.
type Policy struct {
	Notebooks []NotebookACL
	Defaults  map[string]any
}

// NotebookName returns the human name of a real notebook.
func (p *Policy) NotebookName(id string) (string, bool) {
	if p == nil {
		return "", false
	}
	for i := range p.Notebooks {
		if p.Notebooks[i].ID == id && !p.Notebooks[i].IsAdminEntry() {
			return p.Notebooks[i].Name, true
		}
	}
	return "", false
}

// Access is the result of resolving a user's groups against a Policy.
type Access struct {
	// All is set when the user holds admin rights. Notebooks is empty then.
	All bool
	// Notebooks is sorted and duplicate free.
	Notebooks []string
}

// AllNotebooks returns the unrestricted access value.
func AllNotebooks() Access {
	return Access{All: true}
}

// IsWildcard reports whether the access is unrestricted.
func (a Access) IsWildcard() bool {
	return a.All
}

// Denied reports whether the user may not query any notebook.
func (a Access) Denied() bool {
	return !a.All && len(a.Notebooks) == 0
}

// IDs returns the notebook ids to forward to the backend. Unrestricted access
// is forwarded as the literal wildcard.
func (a Access) IDs() []string {
	if a.All {
		return []string{Wildcard}
	}
	ids := make([]string, len(a.Notebooks))
	copy(ids, a.Notebooks)
	return ids
}
