package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/previewkit/previewd/cli"
	"github.com/previewkit/previewd/pkg/client"
	"github.com/spf13/cobra"
)

// NewSessionsCmd returns the session management command group. Every
// subcommand talks to a running daemon over its lifecycle HTTP API.
func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage preview sessions on a running daemon",
	}

	cmd.PersistentFlags().String("daemon", "http://localhost:8790", "Base URL of the previewd daemon")

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsCreateCmd())
	cmd.AddCommand(newSessionsRmCmd())
	cmd.AddCommand(newSessionsPruneCmd())

	return cmd
}

func daemonClient(cmd *cobra.Command) *client.Client {
	baseURL, _ := cmd.Flags().GetString("daemon")
	return client.New(baseURL)
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.GetOptions(cmd)
			resp, err := daemonClient(cmd).ListSessions(cmd.Context())
			if err != nil {
				return cli.NewErrorHandler(opts.Verbose).Handle(err)
			}

			if opts.JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(resp)
			}

			if len(resp.Sessions) == 0 {
				fmt.Println("No active sessions")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tAGE\tWATCHING\tWORKSPACE")
			for _, sess := range resp.Sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n",
					sess.ID,
					sess.StartTime.Format(time.RFC3339),
					(time.Duration(sess.AgeMs) * time.Millisecond).Round(time.Second),
					sess.Watching,
					sess.WorkspacePath,
				)
			}
			return w.Flush()
		},
	}
}

func newSessionsCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <source-path>",
		Short: "Create a session from a source tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := daemonClient(cmd).CreateSession(cmd.Context(), args[0])
			if err != nil {
				return cli.NewErrorHandler(cli.GetOptions(cmd).Verbose).Handle(err)
			}
			fmt.Printf("Created session %s\n  workspace: %s\n", sess.ID, sess.WorkspacePath)
			return nil
		},
	}
}

func newSessionsRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <session-id>",
		Short: "Delete one session and its workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := daemonClient(cmd).DeleteSession(cmd.Context(), args[0]); err != nil {
				return cli.NewErrorHandler(cli.GetOptions(cmd).Verbose).Handle(err)
			}
			fmt.Printf("Deleted session %s\n", args[0])
			return nil
		},
	}
}

func newSessionsPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete every session",
		RunE: func(cmd *cobra.Command, args []string) error {
			failures, err := daemonClient(cmd).DeleteAll(cmd.Context())
			if err != nil {
				return cli.NewErrorHandler(cli.GetOptions(cmd).Verbose).Handle(err)
			}
			if len(failures) > 0 {
				for id, msg := range failures {
					fmt.Fprintf(os.Stderr, "failed to delete %s: %s\n", id, msg)
				}
				return fmt.Errorf("%d sessions could not be deleted", len(failures))
			}
			fmt.Println("All sessions deleted")
			return nil
		},
	}
}
