package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/satyaki-up/issueboard/internal/hub"
	"github.com/satyaki-up/issueboard/internal/issues"
	"github.com/satyaki-up/issueboard/internal/server"
	"github.com/satyaki-up/issueboard/internal/telemetry"
	"github.com/satyaki-up/issueboard/internal/tui"
)

const hubStartTimeout = 10 * time.Second

// startHub opens a watching store and a hub fed from it.
func (c *cli) startHub(ctx context.Context) (*issues.Service, *hub.Hub, error) {
	svc, st, err := c.service(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	h := hub.New(st, hub.WithLogger(c.logger), hub.WithMeter(telemetry.Meter("")))
	c.closers = append(c.closers, h.Close)

	startCtx, cancel := context.WithTimeout(ctx, hubStartTimeout)
	defer cancel()
	if err := h.Start(startCtx); err != nil {
		return nil, nil, fmt.Errorf("start hub: %w", err)
	}
	return svc, h, nil
}

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print a line for every change to the board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, h, err := c.startHub(ctx)
			if err != nil {
				return err
			}

			lines := make(chan string, 16)
			sub, err := h.Subscribe(func(snap issues.Snapshot) {
				select {
				case lines <- c.watchLine(snap):
				case <-ctx.Done():
				}
			})
			if err != nil {
				return err
			}
			defer sub.Cancel()

			for {
				select {
				case <-ctx.Done():
					return nil
				case line := <-lines:
					fmt.Fprintln(c.stdout, line)
				}
			}
		},
	}
}

func (c *cli) watchLine(snap issues.Snapshot) string {
	if c.jsonOut {
		out, err := json.Marshal(snap)
		if err != nil {
			return fmt.Sprintf(`{"error":%q}`, err.Error())
		}
		return string(out)
	}
	cols := snap.Columns()
	parts := make([]string, 0, len(issues.Statuses)+1)
	parts = append(parts, fmt.Sprintf("v%d", snap.Version))
	for _, st := range issues.Statuses {
		parts = append(parts, fmt.Sprintf("%s=%d", statusKey(st), len(cols[st])))
	}
	return strings.Join(parts, " ")
}

func (c *cli) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the board over HTTP with live websocket updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = c.cfg.Addr
			}
			svc, h, err := c.startHub(cmd.Context())
			if err != nil {
				return err
			}
			srv := server.New(addr, server.NewHandler(server.HandlerConfig{
				Service: svc,
				Feed:    h,
				Logger:  c.logger,
				Actor:   c.cfg.Actor,
			}))

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return srv.Run(ctx)
			})
			g.Go(func() error {
				<-ctx.Done()
				h.Close()
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: config addr)")
	return cmd
}

func (c *cli) tuiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the live board in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("%w: tui needs an interactive terminal", issues.ErrInvalidInput)
			}
			ctx := cmd.Context()
			svc, h, err := c.startHub(ctx)
			if err != nil {
				return err
			}
			p := tea.NewProgram(tui.NewApp(svc, c.cfg.Actor), tea.WithAltScreen(), tea.WithContext(ctx))
			sub, err := h.Subscribe(func(snap issues.Snapshot) {
				p.Send(tui.SnapshotMsg(snap))
			})
			if err != nil {
				return err
			}
			defer sub.Cancel()

			_, err = p.Run()
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}
