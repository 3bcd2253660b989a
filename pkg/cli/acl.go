package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/knowbot/pkg/acl"
	"github.com/m-mizutani/knowbot/pkg/model"
	"github.com/urfave/cli/v3"
)

func aclCommand() *cli.Command {
	return &cli.Command{
		Name:  "acl",
		Usage: "Inspect the access-control policy",
		Commands: []*cli.Command{
			aclValidateCommand(),
			aclResolveCommand(),
		},
	}
}

func aclValidateCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "validate",
		Usage: "Load the policy and report errors",
		Flags: aclFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			store, cleanup, err := cfg.newPolicyStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			w := c.Root().Writer
			policy := store.Policy()
			fmt.Fprintf(w, "Policy %s is valid\n", store.Source())
			fmt.Fprintf(w, "Admin groups: %d\n", len(acl.AdminGroups(policy)))
			for _, nb := range store.Notebooks() {
				fmt.Fprintf(w, "  %s (%s): %s\n", nb.ID, nb.Name, describeRules(nb.AllowedGroups))
			}
			return nil
		},
	}
}

func aclResolveCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "resolve",
		Usage:     "Show the notebooks a set of groups can access",
		ArgsUsage: "<group-id>...",
		Flags:     aclFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			groups := c.Args().Slice()
			if len(groups) == 0 {
				return goerr.New("at least one group id is required")
			}

			store, cleanup, err := cfg.newPolicyStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			w := c.Root().Writer
			access := store.Resolve(groups)
			switch {
			case access.Denied():
				fmt.Fprintln(w, "No access")
			case access.IsWildcard():
				fmt.Fprintln(w, "All notebooks (admin)")
			default:
				for _, id := range access.Notebooks {
					name, _ := store.NotebookName(id)
					fmt.Fprintf(w, "%s\t%s\n", id, name)
				}
			}
			return nil
		},
	}
}

func describeRules(rules []model.GroupRule) string {
	if len(rules) == 0 {
		return "nobody"
	}
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.String())
	}
	return strings.Join(out, ", ")
}
