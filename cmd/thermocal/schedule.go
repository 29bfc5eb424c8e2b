package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule [cron-expression]",
		Aliases: []string{"sch", "sched"},
		Short:   "Manage scheduled calibration runs",
		Long: `Manage scheduled calibration runs.

Scheduled runs execute the plan stored in the daemon config file.

  thermocal schedule 'minute hour day month weekday'  Set schedule with cron expression
  thermocal schedule disable                          Disable the schedule
  thermocal schedule skip                             Skip next run
  thermocal schedule show                             Show current schedule`,
		Example: `  thermocal schedule '0 6 * * 1'  (At 06:00 every Monday)
  thermocal schedule '@every 12h'`,
		GroupID: gAdvanced,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runScheduleShow(cmd)
			}
			return runScheduleSet(cmd, args[0])
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "disable",
			Short: "Disable scheduled runs",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runScheduleSet(cmd, "")
			},
		},
		&cobra.Command{
			Use:   "skip",
			Short: "Skip the next scheduled run",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx, cancel := commandContext(cmd.Context())
				defer cancel()
				ret, err := apiClient.SkipSchedule(ctx)
				if err != nil {
					return fmt.Errorf("failed to skip scheduled run: %w", err)
				}
				cmd.Println(ret)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Show the current schedule",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runScheduleShow(cmd)
			},
		},
	)

	return cmd
}

func runScheduleSet(cmd *cobra.Command, expr string) error {
	ctx, cancel := commandContext(cmd.Context())
	defer cancel()
	ret, err := apiClient.SetSchedule(ctx, expr)
	if err != nil {
		return fmt.Errorf("failed to set schedule: %w", err)
	}
	cmd.Println(ret)
	return nil
}

func runScheduleShow(cmd *cobra.Command) error {
	ctx, cancel := commandContext(cmd.Context())
	defer cancel()
	st, err := apiClient.GetSchedule(ctx)
	if err != nil {
		return fmt.Errorf("failed to get schedule: %w", err)
	}
	if st.Expression == "" {
		cmd.Println("No calibration schedule set.")
		return nil
	}
	cmd.Printf("Schedule: %s\n", bold("%s", st.Expression))
	if !st.NextRun.IsZero() {
		cmd.Printf("Next run: %s (in %s)\n", bold("%s", st.NextRun.Format(time.DateTime)), time.Until(st.NextRun).Round(time.Second))
	}
	return nil
}
