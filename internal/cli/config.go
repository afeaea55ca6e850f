package cli

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/ytget/streamproxy/internal/config"
)

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return config.Render(cmd.OutOrStdout(), a.v)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "env",
		Short: "List the environment variables and their defaults",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fields := lo.Values(config.Default)
			sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%s\n\t%s (default 5000)\n", config.PortEnv, config.Default[config.KeyServerPort].Description)
			for _, f := range fields {
				_, _ = fmt.Fprintf(out, "%s\n\t%s (default %v)\n", f.Env(), f.Description, f.Value)
			}
		},
	})
	return cmd
}
