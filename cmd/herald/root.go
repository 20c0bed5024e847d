package main

import (
	"github.com/spf13/cobra"

	"herald/internal/config"
	"herald/internal/theme"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "herald",
	Short:         "Scheduled community posting and engagement bot for Farcaster and X",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadDotEnv()
	},
	Run: func(cmd *cobra.Command, args []string) {
		theme.PrintBanner(cmd.OutOrStdout())
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./herald.yaml", "config file path")
	rootCmd.AddCommand(
		newInitCmd(),
		newRunCmd(),
		newPostCmd(),
		newTickCmd(),
		newEngageCmd(),
		newArchiveCmd(),
		newResolveCmd(),
		newDigestCmd(),
		newStatsCmd(),
	)
}
