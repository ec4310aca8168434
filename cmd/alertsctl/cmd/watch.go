package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/good-yellow-bee/alertboard/internal/feed"
	"github.com/good-yellow-bee/alertboard/internal/screen"
)

const clearScreen = "\033[H\033[2J"

var watchNoClear bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the live alert feed",
	Long: `Show the alert feed, newest first, and redraw it whenever it changes.
Runs until interrupted.

Example:
  alertsctl watch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := connect(ctx)
		if err != nil {
			return err
		}
		redraw := !watchNoClear && term.IsTerminal(int(os.Stdout.Fd()))
		return runWatch(ctx, c, os.Stdout, redraw, cliLogger())
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchNoClear, "no-clear", false, "append redraws instead of clearing the terminal")
}

// runWatch mounts an alert screen over coll and writes it to w on every
// change until ctx ends or the live subscription fails.
func runWatch(ctx context.Context, coll feed.Collection, w io.Writer, redraw bool, logger *zap.Logger) error {
	s := screen.New(coll, screen.WithLogger(logger), screen.WithLocation(time.Local))

	var mu sync.Mutex
	s.OnChange(func(st screen.State) {
		mu.Lock()
		defer mu.Unlock()
		if redraw {
			fmt.Fprint(w, clearScreen)
		}
		if err := screen.WriteText(w, st); err != nil {
			logger.Warn("write screen", zap.Error(err))
		}
	})

	if err := s.Mount(ctx); err != nil {
		return err
	}
	defer s.Unmount()
	done := s.Done()

	select {
	case <-ctx.Done():
		return nil
	case <-done:
		if err := s.State().SubscriptionErr; err != nil {
			return fmt.Errorf("live updates stopped: %w", err)
		}
		return nil
	}
}
