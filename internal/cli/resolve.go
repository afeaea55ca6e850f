package cli

import (
	"encoding/json"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/ytget/streamproxy/errs"
	"github.com/ytget/streamproxy/internal/server"
)

func (a *app) resolveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "resolve <video_id>",
		Short:   "Resolve one video and print the response body",
		Example: "  streamproxy resolve dQw4w9WgXcQ --policy highest",
		Args:    cobra.ExactArgs(1),
		RunE:    a.resolve,
	}
	cmd.Flags().BoolP("compact", "C", false, "Print JSON on one line")
	return cmd
}

func (a *app) resolve(cmd *cobra.Command, args []string) error {
	// Standard output carries the JSON body.
	if a.cfg.Log.Output == "" || strings.EqualFold(a.cfg.Log.Output, "stdout") {
		a.cfg.Log.Output = "stderr"
	}

	resolver, _, closer, err := a.pipeline()
	if err != nil {
		return err
	}
	defer closer.Close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	if !lo.Must(cmd.Flags().GetBool("compact")) {
		enc.SetIndent("", "  ")
	}

	videoID := args[0]
	stream, err := resolver.Resolve(cmd.Context(), videoID)
	if err != nil {
		if encErr := enc.Encode(server.ErrorResponse{Error: errs.MessageOf(err), VideoID: videoID}); encErr != nil {
			return encErr
		}
		return err
	}
	return enc.Encode(server.NewStreamResponse(stream))
}
