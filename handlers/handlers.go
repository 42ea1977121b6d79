package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/melkeydev/db-export/export"
	"github.com/melkeydev/db-export/types"
)

// Sessions is the part of the session manager the tools use.
type Sessions interface {
	Connect(ctx context.Context, d types.Descriptor) error
	ListTables(ctx context.Context, kind types.Kind, schema string) ([]string, error)
	ListSchemas(ctx context.Context) ([]string, error)
}

// Preparer validates export requests.
type Preparer interface {
	Prepare(ctx context.Context, req types.ExportRequest) (*export.Job, error)
}

func kindArg(request mcp.CallToolRequest) (types.Kind, error) {
	raw, err := request.RequireString("type")
	if err != nil {
		return "", err
	}
	return types.ParseKind(raw)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}

// ConnectHandler creates a handler for the connect_database tool
func ConnectHandler(sessions Sessions) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, err := kindArg(request)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid type parameter: %v", err)), nil
		}

		d := types.Descriptor{
			Kind:     kind,
			Host:     request.GetString("host", ""),
			Port:     request.GetInt("port", 0),
			User:     request.GetString("user", ""),
			Password: request.GetString("password", ""),
			Database: request.GetString("database", ""),
			Schema:   request.GetString("schema", ""),
			SSLMode:  request.GetString("sslmode", ""),
		}
		if err := sessions.Connect(ctx, d); err != nil {
			return mcp.NewToolResultErrorFromErr("Connect failed", err), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Connected to %s database %s", kind, d.Database)), nil
	}
}

// ListTablesHandler creates a handler for the list_tables tool
func ListTablesHandler(sessions Sessions) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, err := kindArg(request)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid type parameter: %v", err)), nil
		}

		tables, err := sessions.ListTables(ctx, kind, request.GetString("schema", ""))
		if err != nil {
			return mcp.NewToolResultErrorFromErr("List tables failed", err), nil
		}
		return jsonResult(tables)
	}
}

// ListSchemasHandler creates a handler for the list_schemas tool
func ListSchemasHandler(sessions Sessions) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schemas, err := sessions.ListSchemas(ctx)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("List schemas failed", err), nil
		}
		return jsonResult(schemas)
	}
}

type exportSummary struct {
	Output string   `json:"output"`
	Tables []string `json:"tables"`
	Rows   int64    `json:"rows"`
}

// ExportHandler creates a handler for the export_tables tool. The archive
// is written to the output path; a failed export leaves no file behind.
func ExportHandler(exporter Preparer) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, err := kindArg(request)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid type parameter: %v", err)), nil
		}
		tables, err := request.RequireStringSlice("tables")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Missing tables parameter: %v", err)), nil
		}
		output := request.GetString("output", "export.zip")

		job, err := exporter.Prepare(ctx, types.ExportRequest{
			Kind:   kind,
			Schema: request.GetString("schema", ""),
			Tables: tables,
		})
		if err != nil {
			return mcp.NewToolResultErrorFromErr("Export rejected", err), nil
		}

		if err := writeArchive(ctx, job, output); err != nil {
			return mcp.NewToolResultErrorFromErr("Export failed", err), nil
		}

		abs, err := filepath.Abs(output)
		if err != nil {
			abs = output
		}
		return jsonResult(exportSummary{Output: abs, Tables: job.Tables(), Rows: job.Rows()})
	}
}

func writeArchive(ctx context.Context, job *export.Job, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	job.Begin()
	return job.Run(ctx, f)
}
