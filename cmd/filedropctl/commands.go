package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"filedrop/internal/db"
	"filedrop/internal/sweep"

	"github.com/spf13/cobra"
)

var errNotTerminal = errors.New("stdin is not a terminal")

// adminService is the slice of service.Service the CLI drives.
type adminService interface {
	CreateUser(ctx context.Context, username string) (string, error)
	RemoveUser(ctx context.Context, username string) error
	RotateKey(ctx context.Context, username string) (string, error)
	ListUsers(ctx context.Context) ([]string, error)
	CheckKey(ctx context.Context, username, key string) (bool, error)
}

type env struct {
	admin   adminService
	migrate func(ctx context.Context) ([]db.MigrationResult, error)
	// sweep is nil when payloads live in the database.
	sweep func(ctx context.Context) (sweep.Summary, error)
	close func()
}

type openEnvFunc func(ctx context.Context) (*env, error)

func newRootCmd(open openEnvFunc, readSecret func() ([]byte, error)) *cobra.Command {
	root := &cobra.Command{
		Use:          "filedropctl",
		Short:        "Administer filedrop users and schema",
		SilenceUsage: true,
	}

	// withEnv opens the database for the duration of one command.
	withEnv := func(run func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()
			return run(cmd, e, args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "add-user <username>",
			Short: "Create a user and print its API key once",
			Args:  cobra.ExactArgs(1),
			RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
				secret, err := e.admin.CreateUser(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "api key: %s\n", secret)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "remove-user <username>",
			Short: "Delete a user; their files stay and lose attribution",
			Args:  cobra.ExactArgs(1),
			RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
				if err := e.admin.RemoveUser(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "deleted successfully")
				return nil
			}),
		},
		&cobra.Command{
			Use:     "rotate-key <username>",
			Aliases: []string{"update-key"},
			Short:   "Replace a user's API key and print the new one once",
			Args:    cobra.ExactArgs(1),
			RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
				secret, err := e.admin.RotateKey(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "new api key: %s\n", secret)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "list-users",
			Short: "List usernames",
			Args:  cobra.NoArgs,
			RunE: withEnv(func(cmd *cobra.Command, e *env, _ []string) error {
				names, err := e.admin.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", name)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "check-key <username>",
			Short: "Check an API key against a user; the key is read from the terminal or stdin",
			Args:  cobra.ExactArgs(1),
			RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
				key, err := readKey(cmd.InOrStdin(), readSecret)
				if err != nil {
					return err
				}
				ok, err := e.admin.CheckKey(cmd.Context(), args[0], key)
				if err != nil {
					return err
				}
				if ok {
					fmt.Fprintln(cmd.OutOrStdout(), "key valid")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "key invalid")
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending database migrations",
			Args:  cobra.NoArgs,
			RunE: withEnv(func(cmd *cobra.Command, e *env, _ []string) error {
				applied, err := e.migrate(cmd.Context())
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				}
				for _, m := range applied {
					fmt.Fprintf(cmd.OutOrStdout(), "applied %d %s\n", m.Version, m.Source)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Delete stored payloads that no file references",
			Args:  cobra.NoArgs,
			RunE: withEnv(func(cmd *cobra.Command, e *env, _ []string) error {
				if e.sweep == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "payloads are stored in the database, nothing to sweep")
					return nil
				}
				sum, err := e.sweep(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, deleted %d, too recent %d, failed %d\n",
					sum.Scanned, sum.Deleted, sum.Young, sum.Failed)
				if sum.Failed > 0 {
					return fmt.Errorf("%d payloads could not be deleted", sum.Failed)
				}
				return nil
			}),
		},
	)
	return root
}

// readKey prefers a hidden terminal prompt and falls back to the first line of in.
func readKey(in io.Reader, readSecret func() ([]byte, error)) (string, error) {
	if readSecret != nil {
		b, err := readSecret()
		if err == nil {
			return strings.TrimSpace(string(b)), nil
		}
		if !errors.Is(err, errNotTerminal) {
			return "", fmt.Errorf("read key: %w", err)
		}
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read key from stdin: %w", err)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return "", errors.New("no key given")
	}
	return key, nil
}
