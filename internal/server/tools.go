package server

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"unitmap/internal/command"
)

// Arguments structs

type GetUnitArgs struct {
	ID string `json:"id" jsonschema:"required,description:The id of the unit to fetch"`
}

type GetClusterArgs struct {
	ID string `json:"id" jsonschema:"required,description:The id of the cluster to fetch"`
}

type GetDependenciesArgs struct {
	ID        string `json:"id" jsonschema:"required,description:The unit whose dependency edges to list"`
	Direction string `json:"direction" jsonschema:"description:Edge direction to follow: in, out, or both (default both)"`
}

type FindUnitsArgs struct {
	Query  string         `json:"query,omitempty" jsonschema:"description:Plain substring query over name, code, and description"`
	Filter map[string]any `json:"filter,omitempty" jsonschema:"description:Structured filter; recognized keys: id, nameContains, codeContains, descriptionContains, ofType, memberOfCluster, dependsOn, dependencyOf, hasTests, originalSource"`
}

type PreviewExecutionArgs struct {
	EntryPointID string `json:"entry_point_id" jsonschema:"required,description:The unit id to resolve, assemble, and invoke"`
	Args         []any  `json:"args,omitempty" jsonschema:"description:Arguments passed to the entry unit"`
}

type IngestArgs struct {
	Path string `json:"path" jsonschema:"required,description:The directory to scan for source files"`
}

type PartitionClustersArgs struct{}

type StartUpdateArgs struct {
	IntervalMs float64 `json:"interval_ms,omitempty" jsonschema:"description:Aggregation interval in milliseconds"`
}

type StopUpdateArgs struct{}

func (s *Server) registerTools() {
	register(s, "get_unit", "Fetches a unit by id",
		func(args GetUnitArgs) command.Request {
			return command.Request{Command: "get_unit", Params: map[string]any{"id": args.ID}}
		})
	register(s, "get_cluster", "Fetches a cluster and its members by id",
		func(args GetClusterArgs) command.Request {
			return command.Request{Command: "get_cluster", Params: map[string]any{"id": args.ID}}
		})
	register(s, "get_dependencies", "Lists the dependency edges touching a unit",
		func(args GetDependenciesArgs) command.Request {
			return command.Request{Command: "get_dependencies", Params: map[string]any{
				"id":        args.ID,
				"direction": args.Direction,
			}}
		})
	register(s, "find_units", "Searches units by plain query or structured filter",
		func(args FindUnitsArgs) command.Request {
			params := map[string]any{}
			if args.Query != "" {
				params["query"] = args.Query
			}
			if args.Filter != nil {
				params["filter"] = args.Filter
			}
			return command.Request{Command: "find_units", Params: params}
		})
	register(s, "preview_execution", "Resolves, assembles, and executes a unit's bundle",
		func(args PreviewExecutionArgs) command.Request {
			return command.Request{Command: "preview_execution", Params: map[string]any{
				"entry_point_id": args.EntryPointID,
				"args":           args.Args,
			}}
		})
	register(s, "ingest", "Scans a directory and updates the unit graph",
		func(args IngestArgs) command.Request {
			return command.Request{Command: "ingest", Params: map[string]any{"path": args.Path}}
		})
	register(s, "partition_clusters", "Assigns every unit to a size-bounded cluster",
		func(args PartitionClustersArgs) command.Request {
			return command.Request{Command: "partition_clusters"}
		})
	register(s, "start_update", "Starts the periodic trace-to-graph aggregation",
		func(args StartUpdateArgs) command.Request {
			params := map[string]any{}
			if args.IntervalMs > 0 {
				params["interval_ms"] = args.IntervalMs
			}
			return command.Request{Command: "start_update", Params: params}
		})
	register(s, "stop_update", "Stops the periodic aggregation",
		func(args StopUpdateArgs) command.Request {
			return command.Request{Command: "stop_update"}
		})
}

// register adds one tool whose handler forwards to the dispatcher and
// renders the response payload as JSON.
func register[T any](s *Server, name, description string, build func(T) command.Request) {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        name,
		Description: description,
	}, func(ctx context.Context, req *mcp.CallToolRequest, args T) (*mcp.CallToolResult, any, error) {
		resp := s.dispatcher.Dispatch(ctx, build(args))
		if !resp.Success {
			return errorResult(resp.Error), nil, nil
		}
		jsonBytes, err := json.MarshalIndent(resp.Payload, "", "  ")
		if err != nil {
			return errorResult("failed to encode payload: " + err.Error()), nil, nil
		}
		return textResult(string(jsonBytes)), nil, nil
	})
}
