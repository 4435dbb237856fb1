package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/BioHazard786/doorcall/internal/logging"
	"github.com/BioHazard786/doorcall/internal/ui"
	"github.com/BioHazard786/doorcall/internal/version"
	"github.com/spf13/cobra"
)

var flagLogLevel string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "doorcall",
	Short: "One-button video doorbell over WebRTC",
	Long: `doorcall turns a small device with a camera, a microphone and a button into a video doorbell.
Every press opens a room on a rendezvous server, tells you which room to join, and answers
your browser's call with live audio and video. The rendezvous server ships in the same binary.`,
	Version: version.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagLogLevel != "" {
			logging.Init(flagLogLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
