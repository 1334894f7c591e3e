package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satyaki-up/issueboard/internal/config"
	"github.com/satyaki-up/issueboard/internal/issues"
)

func (c *cli) initCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create " + config.FileName + " for a new board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				dir = wd
			}
			path, err := config.WriteDefault(dir, c.project, c.actor)
			if err != nil {
				return err
			}
			if c.jsonOut {
				c.printJSON(map[string]string{"config": path})
				return nil
			}
			fmt.Fprintf(c.stdout, "initialized board config at %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory for the config file (default: current directory)")
	return cmd
}

func (c *cli) createCmd() *cobra.Command {
	var (
		title, description, priority, assignee string
		force                                  bool
	)
	cmd := &cobra.Command{
		Use:   "create [title]",
		Short: "Create an issue, warning about similar active ones",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" && len(args) == 1 {
				title = args[0]
			}
			prio, err := issues.ParsePriority(priority)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, _, err := c.service(ctx, false)
			if err != nil {
				return err
			}
			res, err := svc.Create(ctx, issues.NewIssue{
				Title:       title,
				Description: description,
				Priority:    prio,
				AssignedTo:  assignee,
				CreatedBy:   c.cfg.Actor,
			}, force)
			if err != nil {
				return err
			}
			if res.NeedsConfirmation() {
				if c.jsonOut {
					c.printJSON(map[string]any{"needs_confirmation": true, "similar": res.Similar})
				} else {
					fmt.Fprintln(c.stdout, "similar active issues already exist:")
					for _, is := range res.Similar {
						fmt.Fprintf(c.stdout, "  %s %s (%s)\n", is.ID, is.Title, is.Status)
					}
					fmt.Fprintln(c.stdout, "re-run with --force to create it anyway")
				}
				return errNeedsConfirmation
			}
			if c.jsonOut {
				c.printJSON(res.Issue)
				return nil
			}
			fmt.Fprintf(c.stdout, "created %s\n", res.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&title, "title", "t", "", "issue title")
	f.StringVarP(&description, "description", "d", "", "issue description")
	f.StringVarP(&priority, "priority", "p", "", "Low, Medium or High (default Medium)")
	f.StringVarP(&assignee, "assignee", "a", "", "assignee (default: the creator)")
	f.BoolVarP(&force, "force", "f", false, "create even when similar issues exist")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	var (
		status, assignee string
		active           bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the board, newest first in each column",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter issues.Filter
			if status != "" {
				st, err := issues.ParseStatus(status)
				if err != nil {
					return err
				}
				filter.Status = &st
			}
			filter.ActiveOnly = active
			filter.AssignedTo = strings.TrimSpace(assignee)

			ctx := cmd.Context()
			svc, _, err := c.service(ctx, false)
			if err != nil {
				return err
			}
			snap, err := svc.List(ctx, filter)
			if err != nil {
				return err
			}
			if c.jsonOut {
				c.printJSON(snap)
				return nil
			}
			if filter.Status != nil {
				fmt.Fprintf(c.stdout, "%s (%d)\n", *filter.Status, len(snap.Issues))
				for _, is := range snap.Issues {
					c.printLine(is)
				}
				return nil
			}
			c.printBoard(snap)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&status, "status", "s", "", "only this status")
	f.BoolVar(&active, "active", false, "hide Done issues")
	f.StringVarP(&assignee, "assignee", "a", "", "only issues assigned to this person")
	return cmd
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, _, err := c.service(ctx, false)
			if err != nil {
				return err
			}
			is, err := svc.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if c.jsonOut {
				c.printJSON(is)
				return nil
			}
			c.printIssue(*is)
			return nil
		},
	}
}

func (c *cli) moveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "move <id> <status>",
		Aliases: []string{"status"},
		Short:   "Move an issue to open, in-progress or done",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := issues.ParseStatus(args[1])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, _, err := c.service(ctx, false)
			if err != nil {
				return err
			}
			if err := svc.UpdateStatus(ctx, args[0], to); err != nil {
				return err
			}
			if c.jsonOut {
				c.printJSON(map[string]string{"id": args[0], "status": string(to)})
				return nil
			}
			fmt.Fprintf(c.stdout, "%s -> %s\n", args[0], to)
			return nil
		},
	}
}

func (c *cli) deleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				fmt.Fprintf(c.stdout, "delete %s? re-run with --yes to confirm\n", args[0])
				return errNeedsConfirmation
			}
			ctx := cmd.Context()
			svc, _, err := c.service(ctx, false)
			if err != nil {
				return err
			}
			if err := svc.Delete(ctx, args[0]); err != nil {
				return err
			}
			if c.jsonOut {
				c.printJSON(map[string]string{"deleted": args[0]})
				return nil
			}
			fmt.Fprintf(c.stdout, "deleted %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}
