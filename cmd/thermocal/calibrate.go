package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thermolab/thermocal/pkg/client"
	"github.com/thermolab/thermocal/pkg/monitor"
)

const refreshInterval = time.Second

func NewStartCommand() *cobra.Command {
	var (
		stepArgs []string
		planFile string
		watch    bool
	)

	cmd := &cobra.Command{
		Use:     "start",
		Short:   "Start a calibration run",
		GroupID: gBasic,
		Long: `Start a calibration run.

Without --step or --file the default plan is used: 20°C for 1 minute, then
45°C for 2 minutes. A plan file is YAML (or JSON) with a list of steps:

  steps:
    - target_value: 20
      dwell_minutes: 1
    - target_value: 45
      dwell_minutes: 2`,
		Example: `  thermocal start
  thermocal start --step 25:5 --step 50:10
  thermocal start -f plan.yaml --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, err := buildPlan(planFile, stepArgs)
			if err != nil {
				return err
			}

			if !watch {
				ctx, cancel := commandContext(cmd.Context())
				defer cancel()
				s := monitor.NewSession(monitor.FromClient(apiClient))
				err := s.Start(ctx, steps)
				printLogs(cmd, s.Logs())
				if err != nil {
					return fmt.Errorf("failed to start calibration: %w", err)
				}
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return monitor.Run(ctx, monitor.FromClient(apiClient), func(ctx context.Context, s *monitor.Session) error {
				startCtx, cancel := commandContext(ctx)
				err := s.Start(startCtx, steps)
				cancel()
				if err != nil {
					printLogs(cmd, s.Logs())
					return fmt.Errorf("failed to start calibration: %w", err)
				}
				return watchSession(ctx, cmd, s)
			})
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&stepArgs, "step", nil, "calibration step as target:minutes, repeat for more steps")
	f.StringVarP(&planFile, "file", "f", "", "YAML or JSON plan file")
	f.BoolVarP(&watch, "watch", "w", false, "watch the run after starting it")

	return cmd
}

func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "stop",
		Short:   "Stop the active calibration run",
		GroupID: gBasic,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd.Context())
			defer cancel()
			s := monitor.NewSession(monitor.FromClient(apiClient))
			err := s.Stop(ctx)
			printLogs(cmd, s.Logs())
			if err != nil {
				return fmt.Errorf("failed to stop calibration: %w", err)
			}
			return nil
		},
	}
}

func NewStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Show the controller's calibration status",
		GroupID: gBasic,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd.Context())
			defer cancel()
			st, err := apiClient.GetCalibrationStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to get calibration status: %w", err)
			}
			if asJSON {
				b, err := json.MarshalIndent(st, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}
			renderControllerStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		Short:   "Watch live calibration telemetry",
		GroupID: gBasic,
		Long: `Watch live calibration telemetry until interrupted.

The session status only reflects commands sent from this session, so a run
started elsewhere shows as IDLE while its telemetry is displayed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return monitor.Run(ctx, monitor.FromClient(apiClient), func(ctx context.Context, s *monitor.Session) error {
				return watchSession(ctx, cmd, s)
			})
		},
	}
}

// watchSession redraws the view every refreshInterval until ctx is done or
// the event stream ends. Ctrl-C stops the active run first when this session
// started it.
func watchSession(ctx context.Context, cmd *cobra.Command, s *monitor.Session) error {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	out := cmd.OutOrStdout()
	redraw := func() {
		// clear screen, cursor home
		fmt.Fprint(out, "\033[H\033[2J")
		renderView(out, s.View(), 10)
	}
	redraw()

	done := s.Done()
	for {
		select {
		case <-ctx.Done():
			if s.RunStatus().Active() {
				// ctx is already cancelled, use a fresh one for the stop command
				stopCtx, cancel := commandContext(context.Background())
				defer cancel()
				if err := s.Stop(stopCtx); err != nil {
					return fmt.Errorf("failed to stop calibration: %w", err)
				}
				redraw()
			}
			return nil
		case <-done:
			if ctx.Err() != nil {
				// the subscription went down with ctx
				done = nil
				continue
			}
			redraw()
			return fmt.Errorf("telemetry stream ended: %w", client.ErrTransport)
		case <-ticker.C:
			redraw()
		}
	}
}

func printLogs(cmd *cobra.Command, entries []monitor.LogEntry) {
	for _, e := range entries {
		if e.Severity == monitor.SeverityError {
			cmd.PrintErrln(e.String())
			continue
		}
		cmd.Println(e.String())
	}
}
