// Package acl holds the notebook access-control policy and resolves a user's
// groups to the notebooks they may query.
package acl

import (
	"errors"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/knowbot/pkg/model"
	"gopkg.in/yaml.v3"
)

// ErrConfig is wrapped by every policy load and validation failure.
var ErrConfig = goerr.New("invalid access control config")

type policyDocument struct {
	Notebooks *[]notebookDocument `yaml:"notebooks"`
	Defaults  map[string]any      `yaml:"defaults"`
}

type notebookDocument struct {
	ID            string      `yaml:"id"`
	Name          string      `yaml:"name"`
	Description   string      `yaml:"description"`
	AllowedGroups []groupRule `yaml:"allowed_groups"`
}

type groupRefDocument struct {
	GroupID     string `yaml:"group_id"`
	DisplayName string `yaml:"display_name"`
}

// groupRule decodes either the literal "*" or a group_id mapping.
type groupRule struct {
	rule model.GroupRule
}

func (g *groupRule) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value != model.Wildcard {
			return goerr.Wrap(ErrConfig, "allowed_groups scalar must be \"*\"",
				goerr.V("value", node.Value),
				goerr.V("line", node.Line))
		}
		g.rule = model.AnyGroup()
		return nil

	case yaml.MappingNode:
		var ref groupRefDocument
		if err := node.Decode(&ref); err != nil {
			return goerr.Wrap(errors.Join(ErrConfig, err), "failed to decode group entry", goerr.V("line", node.Line))
		}
		g.rule = model.Group(ref.GroupID, ref.DisplayName)
		return nil

	default:
		return goerr.Wrap(ErrConfig, "allowed_groups entry must be \"*\" or a group mapping", goerr.V("line", node.Line))
	}
}

// IsGroupID reports whether s has the shape of a directory object id:
// 36 characters with exactly 4 dashes. Existence is not checked.
func IsGroupID(s string) bool {
	return len(s) == 36 && strings.Count(s, "-") == 4
}

// Parse decodes and validates a policy document. Either the whole document
// is valid or an error wrapping ErrConfig is returned.
func Parse(data []byte) (*model.Policy, error) {
	var doc policyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		if errors.Is(err, ErrConfig) {
			return nil, err
		}
		return nil, goerr.Wrap(errors.Join(ErrConfig, err), "failed to parse access control config")
	}

	if doc.Notebooks == nil {
		return nil, goerr.Wrap(ErrConfig, "notebooks is required")
	}

	policy := &model.Policy{
		Notebooks: make([]model.NotebookACL, 0, len(*doc.Notebooks)),
		Defaults:  doc.Defaults,
	}
	if policy.Defaults == nil {
		policy.Defaults = map[string]any{}
	}

	seen := make(map[string]struct{}, len(*doc.Notebooks))
	for i, nb := range *doc.Notebooks {
		if nb.ID == "" {
			return nil, goerr.Wrap(ErrConfig, "notebook id is required", goerr.V("index", i))
		}
		if nb.Name == "" {
			return nil, goerr.Wrap(ErrConfig, "notebook name is required", goerr.V("index", i), goerr.V("id", nb.ID))
		}
		if nb.ID != model.Wildcard {
			if _, ok := seen[nb.ID]; ok {
				return nil, goerr.Wrap(ErrConfig, "duplicated notebook id", goerr.V("index", i), goerr.V("id", nb.ID))
			}
			seen[nb.ID] = struct{}{}
		}

		entry := model.NotebookACL{
			ID:            nb.ID,
			Name:          nb.Name,
			Description:   nb.Description,
			AllowedGroups: make([]model.GroupRule, 0, len(nb.AllowedGroups)),
		}
		for _, g := range nb.AllowedGroups {
			if ref, ok := g.rule.Ref(); ok && !IsGroupID(ref.ID) {
				return nil, goerr.Wrap(ErrConfig, "group_id must be a GUID (36 chars, 4 dashes)",
					goerr.V("notebook", nb.ID),
					goerr.V("group_id", ref.ID))
			}
			entry.AllowedGroups = append(entry.AllowedGroups, g.rule)
		}

		policy.Notebooks = append(policy.Notebooks, entry)
	}

	return policy, nil
}
