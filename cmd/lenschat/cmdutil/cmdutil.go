// Package cmdutil holds the flags and wiring shared by the lenschat
// subcommands.
package cmdutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/lenschat/pkg/completion"
	"github.com/papercomputeco/lenschat/pkg/config"
)

// DefaultConfigFile is read from the working directory when --config is not given.
const DefaultConfigFile = "lenschat.toml"

// GlobalFlags are the persistent flags every subcommand accepts.
type GlobalFlags struct {
	ConfigPath string
	Debug      bool
	Model      string
	Transport  string
}

// Register adds the flags to cmd as persistent flags.
func (f *GlobalFlags) Register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&f.ConfigPath, "config", "c", "", "Path to a TOML config file (default ./"+DefaultConfigFile+" if present)")
	cmd.PersistentFlags().BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVarP(&f.Model, "model", "m", "", "Model identifier (default "+completion.DefaultModel+")")
	cmd.PersistentFlags().StringVar(&f.Transport, "transport", "", "Completion transport: rest or sdk")
}

// Load reads the layered configuration, applies any flags set on cmd and
// validates the result.
func (f *GlobalFlags) Load(cmd *cobra.Command) (*config.Config, error) {
	path, err := resolveConfigPath(f.ConfigPath)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Debug = f.Debug
	}
	if flags.Changed("model") {
		cfg.Model = f.Model
	}
	if flags.Changed("transport") {
		cfg.Transport = f.Transport
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	_, err := os.Stat(DefaultConfigFile)
	switch {
	case err == nil:
		return DefaultConfigFile, nil
	case errors.Is(err, fs.ErrNotExist):
		return "", nil
	default:
		return "", fmt.Errorf("could not stat %s: %w", DefaultConfigFile, err)
	}
}

// NewClient builds the completion client over the configured transport.
func NewClient(cfg *config.Config, logger *zap.Logger) (*completion.Client, error) {
	cc := cfg.Completion()

	transport, err := completion.NewTransport(cfg.Transport, cc, logger)
	if err != nil {
		return nil, err
	}

	return completion.NewClient(cc, transport, logger), nil
}
