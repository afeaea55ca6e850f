package cli

import (
	"fmt"
	"runtime"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/ytget/streamproxy"
)

// Set at build time with -ldflags "-X".
var (
	revision = "unknown"
	builtAt  = "unknown"
)

func versionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "version",
		Short:             "Print version and build information",
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			if lo.Must(cmd.Flags().GetBool("short")) {
				_, _ = fmt.Fprintln(out, streamproxy.Version)
				return
			}
			_, _ = fmt.Fprintf(out, "streamproxy %s\n  revision  %s\n  built     %s\n  platform  %s/%s\n  go        %s\n",
				streamproxy.Version, revision, builtAt, runtime.GOOS, runtime.GOARCH, runtime.Version())
		},
	}
	cmd.Flags().BoolP("short", "s", false, "Print only the version number")
	return cmd
}
