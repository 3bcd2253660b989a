package acl

import (
	"slices"

	"github.com/m-mizutani/knowbot/pkg/model"
)

// AdminGroups returns the union of group ids listed by every admin-wildcard
// entry. A "*" inside an admin entry grants nothing.
func AdminGroups(p *model.Policy) map[string]struct{} {
	admins := make(map[string]struct{})
	for i := range p.Notebooks {
		nb := &p.Notebooks[i]
		if !nb.IsAdminEntry() {
			continue
		}
		for _, rule := range nb.AllowedGroups {
			if ref, ok := rule.Ref(); ok {
				admins[ref.ID] = struct{}{}
			}
		}
	}
	return admins
}

// Resolve computes the notebooks reachable by a member of groupIDs.
// Membership in any admin group yields unrestricted access regardless of
// other groups. Otherwise the result is the sorted, duplicate-free set of
// notebooks that are open to everyone or list one of the groups. An empty
// result means no access.
func Resolve(p *model.Policy, groupIDs []string) model.Access {
	if p == nil {
		return model.Access{}
	}

	groups := make(map[string]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		groups[id] = struct{}{}
	}

	admins := AdminGroups(p)
	for id := range groups {
		if _, ok := admins[id]; ok {
			return model.AllNotebooks()
		}
	}

	reachable := make(map[string]struct{})
	for i := range p.Notebooks {
		nb := &p.Notebooks[i]
		if nb.IsAdminEntry() {
			continue
		}
		if isReachable(nb, groups) {
			reachable[nb.ID] = struct{}{}
		}
	}

	ids := make([]string, 0, len(reachable))
	for id := range reachable {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return model.Access{Notebooks: ids}
}

func isReachable(nb *model.NotebookACL, groups map[string]struct{}) bool {
	for _, rule := range nb.AllowedGroups {
		if rule.IsWildcard() {
			return true
		}
		if ref, ok := rule.Ref(); ok {
			if _, hit := groups[ref.ID]; hit {
				return true
			}
		}
	}
	return false
}
