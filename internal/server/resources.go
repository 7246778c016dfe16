package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const usageGuidelines = `# unitmap

unitmap indexes source text into addressable units, links them through
static and observed call relationships, groups them into size-bounded
clusters, and assembles executable bundles on demand.

Typical flow:
1. ingest a directory to extract units and static edges
2. partition_clusters to assign cluster ids
3. find_units / get_unit / get_dependencies to explore the graph
4. preview_execution to resolve, order, assemble, and run a unit
5. start_update to fold runtime call traces back into the graph
`

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "unitmap://usage-guidelines",
		Name:        "Usage Guidelines",
		Description: "Usage guidelines for the unitmap MCP server",
		MIMEType:    "text/markdown",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      "unitmap://usage-guidelines",
					MIMEType: "text/markdown",
					Text:     usageGuidelines,
				},
			},
		}, nil
	})

	schemaMap := buildSchemaMap()

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "unitmap://schemas/{tool_name}",
		Name:        "Tool Schema",
		Description: "JSON schema for the named tool's arguments",
		MIMEType:    "application/schema+json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		toolName := strings.TrimPrefix(uri, "unitmap://schemas/")
		schemaJSON, ok := schemaMap[toolName]
		if !ok {
			return nil, fmt.Errorf("unknown tool schema: %q", toolName)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/schema+json",
					Text:     schemaJSON,
				},
			},
		}, nil
	})
}

// buildSchemaMap constructs a map from tool name to its JSON schema string.
// Schemas are derived from the args structs using jsonschema inference.
func buildSchemaMap() map[string]string {
	m := make(map[string]string)
	addSchema[GetUnitArgs](m, "get_unit")
	addSchema[GetClusterArgs](m, "get_cluster")
	addSchema[GetDependenciesArgs](m, "get_dependencies")
	addSchema[FindUnitsArgs](m, "find_units")
	addSchema[PreviewExecutionArgs](m, "preview_execution")
	addSchema[IngestArgs](m, "ingest")
	addSchema[PartitionClustersArgs](m, "partition_clusters")
	addSchema[StartUpdateArgs](m, "start_update")
	addSchema[StopUpdateArgs](m, "stop_update")
	return m
}

func addSchema[T any](m map[string]string, name string) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return
	}
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return
	}
	m[name] = string(schemaJSON)
}
