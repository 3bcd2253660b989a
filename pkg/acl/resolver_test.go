package acl_test

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/knowbot/pkg/acl"
	"github.com/m-mizutani/knowbot/pkg/model"
)

const (
	adminGroup = "99999999-aaaa-bbbb-cccc-dddddddddddd"
	hrGroup    = "aaaaaaaa-1111-2222-3333-444444444444"
	engGroup   = "bbbbbbbb-1111-2222-3333-444444444444"
)

func mustParse(t *testing.T, doc string) *model.Policy {
	t.Helper()
	policy, err := acl.Parse([]byte(doc))
	gt.NoError(t, err)
	return policy
}

func TestResolveScenarios(t *testing.T) {
	policy := mustParse(t, `
notebooks:
  - id: "*"
    name: "Admin"
    allowed_groups:
      - group_id: "`+adminGroup+`"
        display_name: "Admins"
  - id: "hr"
    name: "HR"
    allowed_groups:
      - group_id: "`+hrGroup+`"
        display_name: "HR"
  - id: "eng"
    name: "Engineering"
    allowed_groups:
      - group_id: "`+engGroup+`"
        display_name: "Eng"
      - group_id: "`+hrGroup+`"
        display_name: "HR"
  - id: "public"
    name: "Public"
    allowed_groups: ["*"]
  - id: "locked"
    name: "Locked"
    allowed_groups: []
`)

	t.Run("admin group yields unrestricted access", func(t *testing.T) {
		access := acl.Resolve(policy, []string{adminGroup})
		gt.True(t, access.IsWildcard())
		gt.False(t, access.Denied())
		gt.Equal(t, access.IDs(), []string{model.Wildcard})
	})

	t.Run("admin wins over other memberships", func(t *testing.T) {
		access := acl.Resolve(policy, []string{hrGroup, adminGroup, "unknown"})
		gt.True(t, access.IsWildcard())
	})

	t.Run("group member gets its notebooks and open ones", func(t *testing.T) {
		access := acl.Resolve(policy, []string{hrGroup})
		gt.False(t, access.IsWildcard())
		gt.Equal(t, access.Notebooks, []string{"eng", "hr", "public"})
	})

	t.Run("empty group set still reaches open notebooks", func(t *testing.T) {
		access := acl.Resolve(policy, nil)
		gt.Equal(t, access.Notebooks, []string{"public"})
		gt.False(t, access.Denied())
	})

	t.Run("locked notebook is unreachable", func(t *testing.T) {
		access := acl.Resolve(policy, []string{"any-group", hrGroup, engGroup})
		gt.False(t, slices.Contains(access.Notebooks, "locked"))
		gt.False(t, slices.Contains(access.Notebooks, model.Wildcard))
	})

	t.Run("display names do not grant access", func(t *testing.T) {
		access := acl.Resolve(policy, []string{"HR", "Admins"})
		gt.Equal(t, access.Notebooks, []string{"public"})
	})
}

func TestResolveLiteralScenarios(t *testing.T) {
	t.Run("admin entry", func(t *testing.T) {
		policy := mustParse(t, `
notebooks:
  - id: "*"
    name: "All"
    allowed_groups:
      - group_id: "99999999-aaaa-bbbb-cccc-dddddddddddd"
        display_name: "Admins"
  - id: "hr"
    name: "HR"
    allowed_groups:
      - group_id: "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaa1111"
        display_name: "HR"
`)
		gt.True(t, acl.Resolve(policy, []string{"99999999-aaaa-bbbb-cccc-dddddddddddd"}).IsWildcard())
		gt.Equal(t, acl.Resolve(policy, []string{"aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaa1111"}).Notebooks, []string{"hr"})
	})

	t.Run("public notebook", func(t *testing.T) {
		policy := mustParse(t, `
notebooks:
  - id: "public"
    name: "Public"
    allowed_groups: ["*"]
`)
		gt.Equal(t, acl.Resolve(policy, nil).Notebooks, []string{"public"})
	})

	t.Run("locked notebook", func(t *testing.T) {
		policy := mustParse(t, `
notebooks:
  - id: "locked"
    name: "Locked"
    allowed_groups: []
`)
		access := acl.Resolve(policy, []string{"any-group"})
		gt.True(t, access.Denied())
		gt.A(t, access.IDs()).Length(0)
	})
}

func TestResolveUnionsMultipleAdminEntries(t *testing.T) {
	policy := mustParse(t, `
notebooks:
  - id: "*"
    name: "Admins A"
    allowed_groups:
      - group_id: "11111111-1111-1111-1111-111111111111"
        display_name: "A"
  - id: "docs"
    name: "Docs"
  - id: "*"
    name: "Admins B"
    allowed_groups:
      - "*"
      - group_id: "22222222-2222-2222-2222-222222222222"
        display_name: "B"
`)

	gt.True(t, acl.Resolve(policy, []string{"11111111-1111-1111-1111-111111111111"}).IsWildcard())
	gt.True(t, acl.Resolve(policy, []string{"22222222-2222-2222-2222-222222222222"}).IsWildcard())
	// "*" inside an admin entry does not make everyone an admin
	gt.True(t, acl.Resolve(policy, nil).Denied())
}

func TestResolveNilPolicyDenies(t *testing.T) {
	gt.True(t, acl.Resolve(nil, []string{adminGroup}).Denied())
}

// randomPolicy builds a policy over a small group universe so random group
// sets overlap often.
func randomPolicy(r *rand.Rand, groups []string) *model.Policy {
	policy := &model.Policy{}
	n := r.IntN(8) + 1
	for i := 0; i < n; i++ {
		nb := model.NotebookACL{ID: fmt.Sprintf("nb-%02d", r.IntN(12)), Name: "n"}
		switch r.IntN(6) {
		case 0:
			nb.AllowedGroups = []model.GroupRule{model.AnyGroup()}
		case 1:
			// locked
		default:
			for j := r.IntN(3) + 1; j > 0; j-- {
				nb.AllowedGroups = append(nb.AllowedGroups, model.Group(groups[r.IntN(len(groups))], ""))
			}
		}
		policy.Notebooks = append(policy.Notebooks, nb)
	}
	if r.IntN(2) == 0 {
		policy.Notebooks = append(policy.Notebooks, model.NotebookACL{
			ID:            model.Wildcard,
			Name:          "admin",
			AllowedGroups: []model.GroupRule{model.Group(groups[r.IntN(len(groups))], "")},
		})
	}
	return policy
}

func randomGroups(r *rand.Rand, groups []string) []string {
	var out []string
	for _, g := range groups {
		if r.IntN(3) == 0 {
			out = append(out, g)
		}
	}
	return out
}

func withoutAdmins(groups []string, admins map[string]struct{}) []string {
	var out []string
	for _, g := range groups {
		if _, ok := admins[g]; !ok {
			out = append(out, g)
		}
	}
	return out
}

func union(a, b []string) []string {
	out := append([]string{}, a...)
	out = append(out, b...)
	slices.Sort(out)
	return slices.Compact(out)
}

func TestResolveProperties(t *testing.T) {
	universe := []string{
		"00000000-0000-0000-0000-000000000001",
		"00000000-0000-0000-0000-000000000002",
		"00000000-0000-0000-0000-000000000003",
		"00000000-0000-0000-0000-000000000004",
		"00000000-0000-0000-0000-000000000005",
		"00000000-0000-0000-0000-000000000006",
	}
	r := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 500; i++ {
		policy := randomPolicy(r, universe)
		admins := acl.AdminGroups(policy)
		g1 := withoutAdmins(randomGroups(r, universe), admins)
		g2 := withoutAdmins(randomGroups(r, universe), admins)

		a1 := acl.Resolve(policy, g1)
		a2 := acl.Resolve(policy, g2)
		a12 := acl.Resolve(policy, slices.Concat(g1, g2))

		// union correctness
		gt.False(t, a12.IsWildcard())
		gt.Equal(t, a12.Notebooks, union(a1.Notebooks, a2.Notebooks))

		// sorted and duplicate free
		gt.True(t, slices.IsSorted(a12.Notebooks))
		gt.Equal(t, len(slices.Compact(slices.Clone(a12.Notebooks))), len(a12.Notebooks))

		// empty set reaches exactly the open notebooks
		var open []string
		for _, nb := range policy.Notebooks {
			if nb.IsAdminEntry() {
				continue
			}
			for _, rule := range nb.AllowedGroups {
				if rule.IsWildcard() {
					open = append(open, nb.ID)
				}
			}
		}
		gt.Equal(t, acl.Resolve(policy, nil).Notebooks, union(open, nil))

		// locked notebooks never appear unless some other entry with the
		// same id grants them
		for _, nb := range policy.Notebooks {
			if nb.IsAdminEntry() || len(nb.AllowedGroups) > 0 {
				continue
			}
			granted := slices.ContainsFunc(policy.Notebooks, func(other model.NotebookACL) bool {
				return other.ID == nb.ID && len(other.AllowedGroups) > 0
			})
			if !granted {
				gt.False(t, slices.Contains(a12.Notebooks, nb.ID))
			}
		}

		// admin precedence
		for admin := range admins {
			gt.True(t, acl.Resolve(policy, append(slices.Clone(g1), admin)).IsWildcard())
		}
	}
}
