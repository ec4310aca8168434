package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertboard/internal/feed"
	"github.com/good-yellow-bee/alertboard/internal/screen"
	"github.com/good-yellow-bee/alertboard/internal/session"
)

var addCmd = &cobra.Command{
	Use:   "add <text...>",
	Short: "Post an alert as the signed-in user",
	Long: `Post an alert. The arguments are joined with single spaces and sent
as typed; the server records your email and its own timestamp.

Example:
  alertsctl add "disk full on db-1"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := connect(ctx)
		if err != nil {
			return err
		}
		p, err := c.Principal(ctx)
		if err != nil {
			return err
		}
		if err := runAdd(ctx, c, p, strings.Join(args, " "), cliLogger()); err != nil {
			return err
		}
		fmt.Println("Alert posted.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
}

// runAdd drives the screen's form the way the page does: show the form,
// type the text, submit.
func runAdd(ctx context.Context, coll feed.Appender, p session.Principal, text string, logger *zap.Logger) error {
	s := screen.New(appendOnly{coll}, screen.WithLogger(logger))
	s.ShowForm()
	s.SetInput(text)
	err := s.Submit(ctx, p)
	if errors.Is(err, screen.ErrEmptyInput) {
		return fmt.Errorf("alert text must not be blank")
	}
	return err
}

// appendOnly adapts an Appender for a screen that is never mounted.
type appendOnly struct {
	feed.Appender
}

func (appendOnly) Subscribe(context.Context, feed.Query) (feed.Subscription, error) {
	return nil, errors.New("add does not subscribe")
}
