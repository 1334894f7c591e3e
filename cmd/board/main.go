package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/satyaki-up/issueboard/internal/config"
	"github.com/satyaki-up/issueboard/internal/issues"
)

const version = "0.3.0"

var errNeedsConfirmation = errors.New("confirmation required")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	c.close()
	if err != nil {
		return c.renderError(err)
	}
	return 0
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "board",
		Short:         "Collaborative issue board",
		Long:          "A shared issue board: create issues, move them through Open, In Progress and Done, and watch every change live.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				return nil
			}
			return c.setup(cmd.Context())
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default: discover "+config.FileName+" upwards)")
	flags.StringVar(&c.dbPath, "db", "", "SQLite database path, or :memory:")
	flags.StringVar(&c.project, "project", "", "3-char id prefix for new issues")
	flags.StringVar(&c.actor, "actor", "", "identity recorded as the creator (default: config actor, $USER)")
	flags.BoolVar(&c.jsonOut, "json", false, "JSON output")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		c.initCmd(),
		c.createCmd(),
		c.listCmd(),
		c.showCmd(),
		c.moveCmd(),
		c.deleteCmd(),
		c.watchCmd(),
		c.serveCmd(),
		c.tuiCmd(),
	)
	return root
}

func (c *cli) renderError(err error) int {
	if !errors.Is(err, errNeedsConfirmation) {
		fmt.Fprintf(c.stderr, "error: %v\n", err)
	}
	switch {
	case errors.Is(err, issues.ErrInvalidInput), errors.Is(err, issues.ErrWorkflowViolation):
		return 2
	case errors.Is(err, issues.ErrNotFound):
		return 3
	case errors.Is(err, errNeedsConfirmation):
		return 4
	default:
		return 1
	}
}

func (c *cli) printJSON(v any) {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func (c *cli) printIssue(is issues.Issue) {
	w := c.stdout
	fmt.Fprintf(w, "id: %s\n", is.ID)
	fmt.Fprintf(w, "title: %s\n", is.Title)
	fmt.Fprintf(w, "status: %s\n", is.Status)
	fmt.Fprintf(w, "priority: %s\n", is.Priority)
	fmt.Fprintf(w, "assigned_to: %s\n", is.AssignedTo)
	fmt.Fprintf(w, "created_by: %s\n", is.CreatedBy)
	if is.Description != "" {
		fmt.Fprintf(w, "description: %s\n", is.Description)
	}
	fmt.Fprintf(w, "created_at: %s\n", is.CreatedAt.Format(time.RFC3339))
}

func (c *cli) printLine(is issues.Issue) {
	fmt.Fprintf(c.stdout, "  %s [%s] %s (%s)\n", is.ID, is.Priority, is.Title, is.AssignedTo)
}

func (c *cli) printBoard(snap issues.Snapshot) {
	cols := snap.Columns()
	for i, st := range issues.Statuses {
		if i > 0 {
			fmt.Fprintln(c.stdout)
		}
		fmt.Fprintf(c.stdout, "%s (%d)\n", st, len(cols[st]))
		for _, is := range cols[st] {
			c.printLine(is)
		}
	}
}

func statusKey(s issues.Status) string {
	return strings.ReplaceAll(strings.ToLower(string(s)), " ", "_")
}
