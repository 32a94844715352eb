package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leaptable/internal/cli/config"
)

// generateSchemaDocs generates the configuration reference.
func generateSchemaDocs(outDir string) error {
	log.Printf("Generating schema docs to %s", outDir)

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := generateConfigurationDoc(outDir); err != nil {
		return fmt.Errorf("failed to generate configuration.md: %w", err)
	}
	log.Printf("  Generated configuration.md")

	return nil
}

// ConfigField represents a configuration field definition.
type ConfigField struct {
	Name        string
	Type        string
	Default     string
	Flag        string
	Description string
	Category    string // "project", "output", "ui"
}

// getConfigSchema returns the configuration schema definition.
// Keep in sync with internal/cli/config/types.go.
func getConfigSchema() []ConfigField {
	return []ConfigField{
		{Name: "data_dir", Type: "string", Default: config.DefaultDataDir, Flag: "--data-dir", Description: "Directory of CSV object tables", Category: "project"},
		{Name: "state_path", Type: "string", Default: config.DefaultStateFile, Flag: "--state", Description: "SQLite database holding the catalog and stored sessions", Category: "project"},
		{Name: "identity_column", Type: "string", Default: config.DefaultIdentityColumn, Flag: "--identity-column", Description: "Query numbering the objects of a table", Category: "project"},

		{Name: "output", Type: "string", Default: config.DefaultOutput, Flag: "--output", Description: "Output format: auto, table, json, csv, markdown", Category: "output"},
		{Name: "page_size", Type: "int", Default: strconv.Itoa(config.DefaultPageSize), Flag: "--page-size", Description: "Rows per page (1 to 1000)", Category: "output"},
		{Name: "server_url", Type: "string", Flag: "--server", Description: "Column server to gather from instead of the local catalog", Category: "output"},
		{Name: "session", Type: "string", Flag: "--session", Description: "Session name for stored table state", Category: "output"},
		{Name: "verbose", Type: "bool", Default: "false", Flag: "--verbose", Description: "Debug logging on stderr", Category: "output"},

		{Name: "ui.port", Type: "int", Default: strconv.Itoa(config.DefaultPort), Flag: "--port", Description: "Port to serve on", Category: "ui"},
		{Name: "ui.watch", Type: "bool", Default: "true", Flag: "--watch", Description: "Reload the catalog when data files change", Category: "ui"},
		{Name: "ui.session_secret", Type: "string", Default: config.DefaultSessionSecret, Flag: "--session-secret", Description: "Secret signing the session cookie (at least 16 characters)", Category: "ui"},
		{Name: "ui.session_ttl", Type: "duration", Default: config.DefaultSessionTTL.String(), Flag: "--session-ttl", Description: "Idle time before a live session is evicted", Category: "ui"},
		{Name: "ui.max_sessions", Type: "int", Default: strconv.Itoa(config.DefaultMaxSessions), Flag: "--max-sessions", Description: "Maximum number of live sessions", Category: "ui"},
	}
}

// envName returns the environment variable for a configuration key.
func envName(key string) string {
	return "LEAPTABLE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "__"))
}

func writeFieldTable(w *MarkdownWriter, category string) {
	headers := []string{"Field", "Type", "Default", "Flag", "Description"}
	var rows [][]string
	for _, f := range getConfigSchema() {
		if f.Category != category {
			continue
		}
		defVal := "-"
		if f.Default != "" {
			defVal = InlineCode(f.Default)
		}
		rows = append(rows, []string{InlineCode(f.Name), f.Type, defVal, InlineCode(f.Flag), f.Description})
	}
	w.Table(headers, rows)
}

// generateConfigurationDoc generates the configuration reference page.
func generateConfigurationDoc(outDir string) error {
	w := NewMarkdownWriter()

	w.Frontmatter("Configuration", "leaptable configuration reference")
	w.GeneratedMarker()

	w.Header(1, "Configuration")
	w.Paragraph("leaptable reads `leaptable.yaml` (or `leaptable.yml`) from the working directory or the nearest parent. " +
		"Relative paths in the file resolve against the directory holding it.")

	w.Header(2, "Project Settings")
	writeFieldTable(w, "project")

	w.Header(2, "Output Settings")
	writeFieldTable(w, "output")

	w.Header(2, "Server Settings")
	w.Paragraph("Settings for `leaptable serve`, nested under the `ui` key:")
	writeFieldTable(w, "ui")

	w.Header(2, "Precedence")
	w.Paragraph("Later sources override earlier ones:")
	w.BulletList([]string{
		"Built-in defaults",
		"Configuration file",
		"Environment variables (" + InlineCode(envName("ui.port")) + " sets " + InlineCode("ui.port") + ")",
		"Command-line flags",
	})

	w.Header(2, "Example")
	w.CodeBlock("yaml", `# leaptable.yaml
data_dir: data/snapshot_128
state_path: .leaptable/state.db
identity_column: number()
page_size: 25
output: table

ui:
  port: 8765
  session_secret: change-me-to-something-long
  session_ttl: 1h
  max_sessions: 500
  watch: true`)

	filename := filepath.Join(outDir, "configuration.md")
	return os.WriteFile(filename, w.Bytes(), 0600)
}
