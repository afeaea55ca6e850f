// Package cli implements the streamproxy command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	cc "github.com/ivanpirog/coloredcobra"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ytget/streamproxy"
	"github.com/ytget/streamproxy/extractor"
	"github.com/ytget/streamproxy/internal/config"
	"github.com/ytget/streamproxy/internal/logger"
	"github.com/ytget/streamproxy/pkg/client"
)

// app carries state shared by the commands of one invocation.
type app struct {
	configFile string

	v   *viper.Viper
	cfg *config.Config

	// newExtractor builds the backend; tests replace it.
	newExtractor func(name string, deps extractor.Deps) (extractor.Extractor, error)
}

// flagKeys binds persistent flags to config keys.
var flagKeys = map[string]string{
	"backend":    config.KeyExtractorBackend,
	"policy":     config.KeySelectionPolicy,
	"proxy":      config.KeyHTTPProxy,
	"log-level":  config.KeyLogLevel,
	"log-format": config.KeyLogFormat,
	"log-output": config.KeyLogOutput,
}

// NewRootCommand returns the command tree. Running it without a
// subcommand serves HTTP.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{newExtractor: extractor.New})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   config.Name,
		Short: "Resolve YouTube videos into direct stream URLs over HTTP",
		Long: "streamproxy answers GET /get_stream/<video_id> with a direct, playable\n" +
			"media URL and the video's metadata.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
		RunE:              a.serve,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configFile, "config", "c", "", "Path to a TOML config file")
	pf.StringP("backend", "b", "", "Extraction backend: "+strings.Join(extractor.Names(), ", "))
	pf.StringP("policy", "p", "", "Format selection policy, e.g. closest=720")
	pf.String("proxy", "", "Outbound proxy URL")
	pf.String("log-level", "", "Log level: trace, debug, info, warn, error")
	pf.String("log-format", "", "Log format: text, json, color")
	pf.String("log-output", "", "Log output: stdout, stderr, null, file:<path>")

	serveFlags(root)
	root.AddCommand(
		a.serveCommand(),
		a.resolveCommand(),
		a.configCommand(),
		schemaCommand(),
		versionCommand(),
	)
	return root
}

// load builds the configuration. Flags beat environment, which beats the
// file, which beats the defaults.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	v, err := config.NewViper(a.configFile)
	if err != nil {
		return err
	}

	keys := make(map[string]string, len(flagKeys)+len(serveFlagKeys))
	for name, key := range flagKeys {
		keys[name] = key
	}
	for name, key := range serveFlagKeys {
		keys[name] = key
	}
	for name, key := range keys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	cfg := config.Decode(v)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.v, a.cfg = v, cfg
	return nil
}

// pipeline wires logger, outbound client, backend and resolver from the
// loaded configuration. The closer releases the log file.
func (a *app) pipeline() (*streamproxy.Resolver, *logger.Logger, io.Closer, error) {
	log, closer, err := logger.Build(&a.cfg.Log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("logger: %w", err)
	}

	httpClient := client.NewWith(a.cfg.ClientConfig(log))
	deps, err := a.cfg.ExtractorDeps(httpClient, log)
	if err != nil {
		_ = closer.Close()
		return nil, nil, nil, err
	}
	ex, err := a.newExtractor(a.cfg.Extractor.Backend, deps)
	if err != nil {
		_ = closer.Close()
		return nil, nil, nil, err
	}
	policy, err := a.cfg.Policy()
	if err != nil {
		_ = closer.Close()
		return nil, nil, nil, err
	}

	r := streamproxy.New(ex).
		WithPolicy(policy).
		WithTimeout(a.cfg.Extractor.Timeout).
		WithLogger(log.WithComponent(logger.ComponentResolver)).
		WithFormatLogger(log.WithComponent(logger.ComponentFormat))

	log.WithComponent(logger.ComponentApp).Debug("pipeline ready", map[string]interface{}{
		"extractor": ex.Name(),
		"policy":    policy.String(),
	})
	return r, log, closer, nil
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	root := NewRootCommand()
	cc.Init(&cc.Config{
		RootCmd:       root,
		Headings:      cc.HiCyan + cc.Bold + cc.Underline,
		Commands:      cc.HiYellow + cc.Bold,
		Example:       cc.Italic,
		ExecName:      cc.Bold,
		Flags:         cc.Bold,
		FlagsDataType: cc.Italic + cc.HiBlue,
	})

	if err := root.ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s: %s\n", config.Name, strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
