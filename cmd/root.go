// Package cmd defines and implements the CLI commands for the bgg-crawler
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bgg-crawler",
		Short: "A resumable crawler for the BoardGameGeek browse catalog.",
		Long: `bgg-crawler walks the BoardGameGeek browse catalog with a headless
browser, persists one structured record per game into a numbered session
directory, and then fetches each game's full rating history. Runs are
resumable: games already committed to the session's loaded index are
skipped cheaply on restart.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.AddCommand(newCrawlCmd())

	return cmd
}

// Execute is the main entry point. An interrupt cancels the command
// context and still exits zero; anything else exits one.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		// Exit zero only when the signal context fired; an error that
		// merely wraps context.Canceled (a dead browser, say) is fatal.
		if ctx.Err() != nil {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
