package cli

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/ytget/streamproxy/internal/server"
)

var schemaTypes = map[string]any{
	"stream": &server.StreamResponse{},
	"error":  &server.ErrorResponse{},
	"info":   &server.InfoResponse{},
	"health": &server.HealthResponse{},
}

func schemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "schema [" + strings.Join(schemaNames(), "|") + "]",
		Short:     "Print the JSON Schema of an HTTP response body",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: schemaNames(),
		// No configuration needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "stream"
			if len(args) == 1 {
				name = strings.ToLower(args[0])
			}
			v, ok := schemaTypes[name]
			if !ok {
				return fmt.Errorf("unknown schema %q (want one of %s)", name, strings.Join(schemaNames(), ", "))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(reflector().Reflect(v))
		},
	}
}

func reflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		Namer: func(t reflect.Type) string {
			return strings.TrimSuffix(t.Name(), "Response")
		},
	}
}

func schemaNames() []string {
	names := lo.Keys(schemaTypes)
	sort.Strings(names)
	return names
}
