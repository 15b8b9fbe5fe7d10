// CLAUDE:SUMMARY MCP tool registration (normalize_identifier, record_correction, reference_stats) over the shared endpoints.
package api

import (
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/combine-registry/pkg/engine"
	"github.com/hazyhaar/combine-registry/pkg/kit"
)

// RegisterMCPTools registers the registry MCP tools on the server.
func RegisterMCPTools(srv *server.MCPServer, eng *engine.Engine, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	eps := newEndpoints(eng, logger)
	registerNormalize(srv, eps.normalize)
	registerCorrection(srv, eps.correction)
	registerReferenceStats(srv, eps.reference)
}

func registerNormalize(srv *server.MCPServer, ep kit.Endpoint) {
	tool := mcp.NewTool("normalize_identifier",
		mcp.WithDescription("Resolve a free-form combine harvester brand and model (e.g. \"jd s790\") to ranked canonical identifiers with confidence scores."),
		mcp.WithString("input", mcp.Required(), mcp.Description("The brand and model as typed by the user")),
		mcp.WithNumber("year", mcp.Description("Manufacturing year, if known")),
		mcp.WithString("region", mcp.Description("Region code of the user (e.g. fr)")),
	)

	kit.RegisterMCPTool(srv, tool, ep, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		input, _ := args["input"].(string)
		if input == "" {
			return nil, errors.New("input is required")
		}
		year, _ := args["year"].(float64)
		region, _ := args["region"].(string)
		return &kit.MCPDecodeResult{Request: &normalizeReq{
			Input:   input,
			Context: contextOf(int(year), region),
		}}, nil
	})
}

func registerCorrection(srv *server.MCPServer, ep kit.Endpoint) {
	tool := mcp.NewTool("record_correction",
		mcp.WithDescription("Record that a suggested canonical identifier was wrong and which one the user confirmed instead."),
		mcp.WithString("original_input", mcp.Required(), mcp.Description("The input that was resolved")),
		mcp.WithString("accepted_canonical", mcp.Required(), mcp.Description("The identifier the user confirmed")),
		mcp.WithString("rejected_canonical", mcp.Description("The identifier that was suggested and rejected")),
		mcp.WithString("region", mcp.Description("Region code of the user")),
	)

	kit.RegisterMCPTool(srv, tool, ep, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		original, _ := args["original_input"].(string)
		accepted, _ := args["accepted_canonical"].(string)
		rejected, _ := args["rejected_canonical"].(string)
		region, _ := args["region"].(string)
		return &kit.MCPDecodeResult{Request: &correctionReq{
			OriginalInput: original,
			Rejected:      rejected,
			Accepted:      accepted,
			Region:        region,
		}}, nil
	})
}

func registerReferenceStats(srv *server.MCPServer, ep kit.Endpoint) {
	tool := mcp.NewTool("reference_stats",
		mcp.WithDescription("Describe the loaded reference data: version, model, alias and variant counts, brands and cache occupancy."),
	)

	kit.RegisterMCPTool(srv, tool, ep, func(_ mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	})
}

// NewMCPServer returns an MCP server exposing the registry tools.
func NewMCPServer(eng *engine.Engine, version string, logger *slog.Logger) *server.MCPServer {
	srv := server.NewMCPServer("combine-registry", version, server.WithToolCapabilities(false))
	RegisterMCPTools(srv, eng, logger)
	return srv
}
