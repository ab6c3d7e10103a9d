package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/lenschat/cmd/lenschat/cmdutil"
	"github.com/papercomputeco/lenschat/pkg/logger"
	"github.com/papercomputeco/lenschat/pkg/session"
	"github.com/papercomputeco/lenschat/tui"
)

const chatLongDesc string = `Chat with the model in the terminal.

Type a message and press Enter. Attach an image to your next message
with /image <path>; it is sent once and then cleared. Logs go to
log_file (or LENSCHAT_LOG_FILE) so they do not disturb the screen.

Examples:
  lenschat chat
  lenschat chat --image ./photo.jpg
  lenschat chat --model openai/gpt-4o-mini`

const chatShortDesc string = "Start an interactive terminal chat"

// ErrNotTerminal is returned when stdin or stdout is not a terminal.
var ErrNotTerminal = errors.New("chat needs an interactive terminal; use \"lenschat ask\" for scripted use")

type chatCommander struct {
	flags     *cmdutil.GlobalFlags
	imagePath string
}

func NewChatCmd(flags *cmdutil.GlobalFlags) *cobra.Command {
	cmder := &chatCommander{flags: flags}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.imagePath, "image", "i", "", "Attach an image to the first message")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, cmd *cobra.Command) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return ErrNotTerminal
	}

	cfg, err := c.flags.Load(cmd)
	if err != nil {
		return err
	}

	log, closeLog, err := logger.NewFileLogger(cfg.LogFile, cfg.Debug)
	if err != nil {
		return err
	}
	defer closeLog()

	client, err := cmdutil.NewClient(cfg, log)
	if err != nil {
		return err
	}

	sess := session.New(cfg.Session(nil), log)
	if c.imagePath != "" {
		data, err := os.ReadFile(c.imagePath)
		if err != nil {
			return fmt.Errorf("could not read image %s: %w", c.imagePath, err)
		}
		if err := sess.SetImage(data); err != nil {
			return fmt.Errorf("could not attach image %s: %w", c.imagePath, err)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	return tui.Run(ctx, sess, client, tui.Options{Model: client.Model()})
}
