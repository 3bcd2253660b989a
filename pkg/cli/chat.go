package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/knowbot/pkg/acl"
	"github.com/m-mizutani/knowbot/pkg/adapter/graph"
	"github.com/m-mizutani/knowbot/pkg/interfaces"
	"github.com/m-mizutani/knowbot/pkg/model"
	"github.com/m-mizutani/knowbot/pkg/usecase/chat"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg      config
		userID   string
		userName string
		groups   string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user-id",
			Aliases:     []string{"u"},
			Usage:       "Entra ID object id to chat as",
			Value:       graph.PlaygroundPrefix + "000000000001",
			Sources:     cli.EnvVars("KNOWBOT_USER_ID"),
			Destination: &userID,
		},
		&cli.StringFlag{
			Name:        "user-name",
			Usage:       "Display name used in replies",
			Value:       "Console",
			Destination: &userName,
		},
		&cli.StringFlag{
			Name:        "groups",
			Aliases:     []string{"g"},
			Usage:       "Comma separated group ids to chat with instead of looking up the user",
			Destination: &groups,
		},
	}
	flags = append(flags, aclFlags(&cfg)...)
	flags = append(flags, directoryFlags(&cfg)...)
	flags = append(flags, backendFlags(&cfg)...)
	flags = append(flags, sessionFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Chat with the bot from the terminal",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			var (
				dir   interfaces.Directory
				store *acl.Store
				err   error
			)
			switch {
			case groups != "":
				dir = graph.NewMock(graph.ParseGroupList(groups))
			case cfg.aclEnabled():
				if dir, err = cfg.newDirectory(nil); err != nil {
					return err
				}
			}
			if dir != nil {
				var cleanup func()
				store, cleanup, err = cfg.newPolicyStore(ctx)
				if err != nil {
					return err
				}
				defer cleanup()
			}

			orch := chat.New(cfg.chatOptions(dir, store, nil)...)
			return runConsole(ctx, orch, c.Root().Writer, userID, userName)
		},
	}
}

func runConsole(ctx context.Context, orch *chat.Orchestrator, w io.Writer, userID, userName string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          w,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to start console")
	}
	defer rl.Close()

	con := newConsole(w)
	conversationID := "console-" + uuid.NewString()
	fmt.Fprintf(w, "Chat session started as %s. Type '/clear' to reset, 'exit' to quit.\n", userID)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				break
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read input")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" {
			break
		}

		turn := &model.Turn{
			ID:               model.NewTurnID(),
			UserID:           userID,
			UserName:         userName,
			ConversationID:   conversationID,
			ConversationType: model.ConversationPersonal,
			Text:             line,
		}

		con.begin()
		orch.HandleTurn(ctx, turn, con)
		con.end()
	}

	fmt.Fprintf(w, "\nChat session completed\n")
	return nil
}
