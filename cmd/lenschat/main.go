package main

import (
	"os"

	"github.com/spf13/cobra"

	askcmder "github.com/papercomputeco/lenschat/cmd/lenschat/ask"
	chatcmder "github.com/papercomputeco/lenschat/cmd/lenschat/chat"
	"github.com/papercomputeco/lenschat/cmd/lenschat/cmdutil"
	servecmder "github.com/papercomputeco/lenschat/cmd/lenschat/serve"
)

const rootLongDesc string = `lenschat is a multimodal chat client for OpenRouter.

Ask questions about images from a browser (serve), a terminal
(chat) or a script (ask). Configuration is read from lenschat.toml,
.env and the environment; OPENROUTER_API_KEY is required.`

func newRootCmd() *cobra.Command {
	flags := &cmdutil.GlobalFlags{}

	cmd := &cobra.Command{
		Use:           "lenschat",
		Short:         "Multimodal chat over the OpenRouter API",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	flags.Register(cmd)

	cmd.AddCommand(
		servecmder.NewServeCmd(flags),
		chatcmder.NewChatCmd(flags),
		askcmder.NewAskCmd(flags),
	)

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
