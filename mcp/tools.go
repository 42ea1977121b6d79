package mcp

import (
	goMCP "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/melkeydev/db-export/handlers"
)

func RegisterTools(s *server.MCPServer, sessions handlers.Sessions, exporter handlers.Preparer) {
	// Connect tool
	connectTool := goMCP.NewTool("connect_database",
		goMCP.WithDescription("Connect to a MySQL, PostgreSQL or SQLite database, replacing any open connection"),
		goMCP.WithString("type",
			goMCP.Required(),
			goMCP.Description("Database type: mysql, postgres or sqlite"),
		),
		goMCP.WithString("host",
			goMCP.Description("Database host (default: localhost)"),
		),
		goMCP.WithNumber("port",
			goMCP.Description("Database port (default: 3306 for mysql, 5432 for postgres)"),
		),
		goMCP.WithString("user",
			goMCP.Description("Database user"),
		),
		goMCP.WithString("password",
			goMCP.Description("Database password"),
		),
		goMCP.WithString("database",
			goMCP.Required(),
			goMCP.Description("Database name, or file path for sqlite"),
		),
		goMCP.WithString("schema",
			goMCP.Description("PostgreSQL schema (default: public)"),
		),
	)

	// List tables tool
	listTablesTool := goMCP.NewTool("list_tables",
		goMCP.WithDescription("List the tables of the connected database"),
		goMCP.WithReadOnlyHintAnnotation(true),
		goMCP.WithString("type",
			goMCP.Required(),
			goMCP.Description("Database type of the connection to use"),
		),
		goMCP.WithString("schema",
			goMCP.Description("PostgreSQL schema (default: public)"),
		),
	)

	// List schemas tool
	listSchemasTool := goMCP.NewTool("list_schemas",
		goMCP.WithDescription("List the user schemas of the connected PostgreSQL database"),
		goMCP.WithReadOnlyHintAnnotation(true),
	)

	// Export tool
	exportTool := goMCP.NewTool("export_tables",
		goMCP.WithDescription("Export tables as CSV files bundled into a ZIP archive"),
		goMCP.WithString("type",
			goMCP.Required(),
			goMCP.Description("Database type of the connection to use"),
		),
		goMCP.WithArray("tables",
			goMCP.Required(),
			goMCP.Description("Tables to export, in archive order"),
			goMCP.Items(map[string]any{"type": "string"}),
		),
		goMCP.WithString("schema",
			goMCP.Description("PostgreSQL schema (default: public)"),
		),
		goMCP.WithString("output",
			goMCP.Description("Path of the ZIP file to write (default: export.zip)"),
		),
	)

	s.AddTool(connectTool, handlers.ConnectHandler(sessions))
	s.AddTool(listTablesTool, handlers.ListTablesHandler(sessions))
	s.AddTool(listSchemasTool, handlers.ListSchemasHandler(sessions))
	s.AddTool(exportTool, handlers.ExportHandler(exporter))
}
