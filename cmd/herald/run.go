package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"herald/internal/cmdlog"
	"herald/internal/logging"
	"herald/internal/metrics"
	"herald/internal/schedule"
	"herald/internal/theme"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run("run", func() error {
				a, err := loadApp()
				if err != nil {
					return err
				}
				defer a.Close()
				theme.PrintBanner(cmd.OutOrStdout())

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return a.run(ctx)
			})
		},
	}
}

// run registers every enabled task and blocks until ctx is cancelled.
func (a *app) run(ctx context.Context) error {
	metrics.StartServer(a.cfg.Metrics.Addr)
	if err := a.pool.Watch(ctx); err != nil {
		logging.Warn("message_pool_watch_failed", logging.Fields{"error": err.Error()})
	}

	s := schedule.New(a.loc)
	engageTask := func(label string) schedule.Func {
		return func(ctx context.Context) error {
			a.driver.EngageAll(ctx, label)
			return nil
		}
	}

	if a.writes {
		if a.cfg.Publish.Enabled {
			s.Add(a.cfg.Publish.Schedule, "publish", func(ctx context.Context) error {
				_, err := a.publisher.Tick(ctx)
				return err
			})
		}
		if a.cfg.Engagement.Enabled {
			for _, spec := range a.cfg.Engagement.Schedules {
				s.Add(spec, "engage", engageTask("cron"))
			}
		}
	}
	if a.cfg.Archive.Enabled {
		s.Add(a.cfg.Archive.Schedule, "archive", func(ctx context.Context) error {
			_, err := a.rotator.Run(time.Now())
			return err
		})
	}
	if a.cfg.Insights.Enabled {
		s.Add(a.cfg.Insights.RefreshSchedule, "insights_refresh", func(ctx context.Context) error {
			_, err := a.refresher.Refresh(ctx)
			return err
		})
		if a.writes {
			s.Add(a.cfg.Insights.DigestSchedule, "insights_digest", func(ctx context.Context) error {
				_, err := a.digester.Run(ctx, false)
				return err
			})
		}
	}

	s.Start(ctx)
	logging.Info("herald_started", logging.Fields{
		"platform": a.adapter.Name(),
		"timezone": a.loc.String(),
		"writes":   a.writes,
	})
	if a.writes && a.cfg.Engagement.Enabled && a.cfg.Engagement.RunOnStart {
		s.Submit("engage", engageTask("startup"))
	}

	<-ctx.Done()
	s.Stop()
	logging.Info("herald_stopped", nil)
	return nil
}
