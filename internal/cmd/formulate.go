package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/noot-app/feed-formulation-mcp-server/internal/catalog"
	"github.com/noot-app/feed-formulation-mcp-server/internal/config"
	"github.com/noot-app/feed-formulation-mcp-server/internal/optimizer"
	"github.com/noot-app/feed-formulation-mcp-server/internal/server"
	"github.com/noot-app/feed-formulation-mcp-server/internal/types"
)

func newFormulateCmd() *cobra.Command {
	var (
		file   string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "formulate",
		Short: "Run formulations from a YAML or JSON request file",
		Long: `Formulate reads one request, or a list of requests, and prints the results
as JSON. Requests select ingredients and a target from the catalog by id
(profile_id, ingredient_ids) or inline (ingredients, target):

  profile_id: "1"
  ingredient_ids: ["1", "3", "6", "7"]

Use "-f -" to read the request from stdin (parsed as YAML, which also accepts JSON).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormulate(cmd, file, strict)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Request file (.yaml, .yml or .json), or - for stdin")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with an error when any formulation produced no blend")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runFormulate(cmd *cobra.Command, file string, strict bool) error {
	logger := config.NewTextLogger(cmd.ErrOrStderr())
	cfg := config.Load()
	ctx := cmd.Context()

	data, format, err := readRequestFile(cmd.InOrStdin(), file)
	if err != nil {
		return err
	}

	reqs, err := types.DecodeRequests(data, format)
	if err != nil {
		return err
	}

	// the catalog is only opened when a request refers to it
	var cat catalog.Catalog
	if needsCatalog(reqs) {
		cat, err = server.NewServerInitializer(cfg, logger).Initialize(ctx)
		if err != nil {
			return err
		}
		defer cat.Close()
	}

	resolved := make([]optimizer.Request, 0, len(reqs))
	for i, req := range reqs {
		in, err := req.Resolve(ctx, cat)
		if err != nil {
			return fmt.Errorf("request %d: %w", i, err)
		}
		resolved = append(resolved, in)
	}

	opt := newOptimizer(cfg, logger, nil)
	outcomes := opt.FormulateBatch(ctx, resolved)

	responses := make([]types.FormulationResponse, 0, len(outcomes))
	failed := 0
	for _, out := range outcomes {
		resp := types.FromOutcome(out)
		if !resp.Feasible {
			failed++
		}
		responses = append(responses, resp)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if len(responses) == 1 {
		err = enc.Encode(responses[0])
	} else {
		err = enc.Encode(responses)
	}
	if err != nil {
		return err
	}

	if strict && failed > 0 {
		return fmt.Errorf("%d of %d formulations produced no blend", failed, len(responses))
	}
	return nil
}

func readRequestFile(stdin io.Reader, file string) ([]byte, types.Format, error) {
	if file == "-" {
		data, err := io.ReadAll(stdin)
		return data, types.FormatYAML, err
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read request file: %w", err)
	}
	return data, types.FormatFromPath(file), nil
}

func needsCatalog(reqs []types.FormulationRequest) bool {
	for _, req := range reqs {
		if req.ProfileID != "" || len(req.IngredientIDs) > 0 {
			return true
		}
	}
	return false
}
