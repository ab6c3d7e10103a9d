package askcmder

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/lenschat/cmd/lenschat/cmdutil"
	"github.com/papercomputeco/lenschat/pkg/logger"
)

const askLongDesc string = `Ask a single question, optionally about an image, and print the reply.

The question and image are sent as one user message. Nothing is kept
after the reply is printed. A failed request prints the error text and
exits non-zero.

Examples:
  lenschat ask "what is the capital of France?"
  lenschat ask --image ./receipt.jpg "what is the total?"
  lenschat ask -i diagram.png`

const askShortDesc string = "Send one question and print the reply"

type askCommander struct {
	flags     *cmdutil.GlobalFlags
	imagePath string
}

func NewAskCmd(flags *cmdutil.GlobalFlags) *cobra.Command {
	cmder := &askCommander{flags: flags}

	cmd := &cobra.Command{
		Use:          "ask [question...]",
		Short:        askShortDesc,
		Long:         askLongDesc,
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&cmder.imagePath, "image", "i", "", "Path to a PNG or JPEG to ask about")

	return cmd
}

func (c *askCommander) run(ctx context.Context, cmd *cobra.Command, question string) error {
	cfg, err := c.flags.Load(cmd)
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{Debug: cfg.Debug, JSON: cfg.LogJSON, Output: cmd.ErrOrStderr()})
	defer log.Sync()

	var image []byte
	if c.imagePath != "" {
		image, err = os.ReadFile(c.imagePath)
		if err != nil {
			return fmt.Errorf("could not read image %s: %w", c.imagePath, err)
		}
	}

	client, err := cmdutil.NewClient(cfg, log)
	if err != nil {
		return err
	}

	log.Debug("asking",
		zap.String("model", client.Model()),
		zap.String("transport", cfg.Transport),
		zap.Bool("image", len(image) > 0),
	)

	result := client.GetReply(ctx, question, image)
	fmt.Fprintln(cmd.OutOrStdout(), result.Display())

	// The failure text is already on stdout; only the exit status is left.
	cmd.SilenceErrors = true
	return result.Err()
}
