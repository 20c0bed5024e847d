package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"herald/internal/analytics"
	"herald/internal/cmdlog"
	"herald/internal/config"
	"herald/internal/model"
	"herald/internal/theme"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run("init", func() error {
				if err := config.Save(cfgPath, config.Default()); err != nil {
					return err
				}
				abs, _ := filepath.Abs(cfgPath)
				theme.PrintBanner(cmd.OutOrStdout())
				fmt.Fprintln(cmd.OutOrStdout(), "Config written to:", abs)
				return nil
			})
		},
	}
}

func newPostCmd() *cobra.Command {
	var bucket string
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Publish one message now, bypassing the gate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run("post", func() error {
				a, err := loadApp()
				if err != nil {
					return err
				}
				defer a.Close()
				if err := a.requireWrites(); err != nil {
					return err
				}
				b := model.Bucket(strings.ToLower(bucket))
				if b != "" && !validBucket(b) {
					return fmt.Errorf("unknown bucket %q", bucket)
				}
				out, err := a.publisher.PublishNow(cmd.Context(), b)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "morning, noon or evening (default: current time of day)")
	return cmd
}

func validBucket(b model.Bucket) bool {
	for _, x := range model.Buckets {
		if x == b {
			return true
		}
	}
	return false
}

func newTickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one publish gate tick",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run("tick", func() error {
				a, err := loadApp()
				if err != nil {
					return err
				}
				defer a.Close()
				if err := a.requireWrites(); err != nil {
					return err
				}
				out, err := a.publisher.Tick(cmd.Context())
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return err
			})
		},
	}
}

func newEngageCmd() *cobra.Command {
	var handle string
	cmd := &cobra.Command{
		Use:   "engage",
		Short: "Run one engagement sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run("engage", func() error {
				a, err := loadApp()
				if err != nil {
					return err
				}
				defer a.Close()
				if err := a.requireWrites(); err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				defer w.Flush()
				fmt.Fprintln(w, "ACCOUNT\tPOSTS\tACTIONS\tALREADY\tFAILED\tRATE_LIMITED")
				if handle != "" {
					acc := model.Account{Handle: handle}
					for _, c := range a.cfg.Engagement.Accounts {
						if c.Handle == handle {
							acc = c
						}
					}
					if acc.ID == "" {
						resolved, err := a.adapter.ResolveAccounts(cmd.Context(), []string{handle})
						if err != nil {
							return fmt.Errorf("resolve %s: %w", handle, err)
						}
						if len(resolved) == 0 {
							return fmt.Errorf("account %s not found", handle)
						}
						acc = resolved[0]
					}
					r, _ := a.driver.EngageWithAccount(cmd.Context(), acc)
					printAccount(w, r.Account.Handle, r.Fetched, r.Actions, r.Already, r.Failed, r.RateLimited)
					return r.Err
				}
				res := a.driver.EngageAll(cmd.Context(), "cli")
				for _, r := range res.Accounts {
					printAccount(w, r.Account.Handle, r.Fetched, r.Actions, r.Already, r.Failed, r.RateLimited)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&handle, "account", "", "engage with a single account handle")
	return cmd
}

func printAccount(w *tabwriter.Writer, handle string, posts, actions, already, failed int, limited bool) {
	fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%t\n", handle, posts, actions, already, failed, limited)
}

func newArchiveCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive and reset the monthly history and log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run("archive", func() error {
				a, err := loadApp()
				if err != nil {
					return err
				}
				defer a.Close()
				if force {
					return a.rotator.Force(time.Now())
				}
				archived, err := a.rotator.Run(time.Now())
				if !archived && err == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "not the last day of the month; use --force to archive anyway")
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "archive regardless of the date")
	return cmd
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <handle>...",
		Short: "Look up platform ids for account handles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run("resolve", func() error {
				a, err := loadApp()
				if err != nil {
					return err
				}
				defer a.Close()
				handles := make([]string, len(args))
				for i, h := range args {
					handles[i] = strings.TrimPrefix(h, "@")
				}
				accounts, err := a.adapter.ResolveAccounts(cmd.Context(), handles)
				writeResolved(cmd.OutOrStdout(), handles, accounts)
				return err
			})
		},
	}
}

// writeResolved prints one line per requested handle, resolved or not.
func writeResolved(w io.Writer, handles []string, accounts []model.Account) {
	ids := map[string]string{}
	for _, acc := range accounts {
		ids[strings.ToLower(acc.Handle)] = acc.ID
	}
	for _, h := range handles {
		if id, ok := ids[strings.ToLower(h)]; ok {
			fmt.Fprintf(w, "%s\t%s\n", h, id)
		} else {
			fmt.Fprintf(w, "%s\tnot found\n", h)
		}
	}
}

func newDigestCmd() *cobra.Command {
	var dryRun, skipRefresh bool
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Refresh insights from allied accounts and post the daily digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run("digest", func() error {
				a, err := loadApp()
				if err != nil {
					return err
				}
				defer a.Close()
				if !dryRun {
					if err := a.requireWrites(); err != nil {
						return err
					}
				}
				if !skipRefresh {
					if _, err := a.refresher.Refresh(cmd.Context()); err != nil {
						return err
					}
				}
				res, err := a.digester.Run(cmd.Context(), dryRun)
				if err != nil {
					return err
				}
				if res.Text != "" {
					fmt.Fprintln(cmd.OutOrStdout(), res.Text)
				}
				switch {
				case res.Posted:
					fmt.Fprintln(cmd.OutOrStdout(), "posted:", res.PostURL)
				case res.Reason != "":
					fmt.Fprintln(cmd.OutOrStdout(), "not posted:", res.Reason)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compose without publishing")
	cmd.Flags().BoolVar(&skipRefresh, "no-refresh", false, "use stored posts only")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show hourly action counts from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run("stats", func() error {
				a, err := loadApp()
				if err != nil {
					return err
				}
				defer a.Close()
				end := time.Now()
				events, err := a.ledger.LoadEventsRange(cmd.Context(), end.Add(-time.Duration(hours)*time.Hour), end, "")
				if err != nil {
					return err
				}
				buckets := analytics.HourlyActivity(events, a.loc)
				types := analytics.SortedTypes(buckets)
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				defer w.Flush()
				fmt.Fprintf(w, "HOUR\t%s\n", strings.ToUpper(strings.Join(types, "\t")))
				for _, k := range analytics.SortedBucketKeys(buckets) {
					row := []string{k.Format("2006-01-02 15:00")}
					for _, t := range types {
						row = append(row, fmt.Sprint(buckets[k][t]))
					}
					fmt.Fprintln(w, strings.Join(row, "\t"))
				}
				totals := analytics.Totals(events)
				row := []string{"TOTAL"}
				for _, t := range types {
					row = append(row, fmt.Sprint(totals[t]))
				}
				fmt.Fprintln(w, strings.Join(row, "\t"))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "look back this many hours")
	return cmd
}
