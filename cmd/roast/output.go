package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func normalizeFormat(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "", "text":
		return formatTable
	case "yml":
		return formatYAML
	default:
		return value
	}
}

func validateFormat(value string) error {
	switch normalizeFormat(value) {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (expected table, json or yaml)", value)
	}
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML renders v as YAML using its JSON field names.
func writeYAML(cmd *cobra.Command, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// writeOutput writes v in the structured format selected by --format. It
// returns false for table output so the caller renders its own view.
func writeOutput(cmd *cobra.Command, ctx *commandContext, v any) (bool, error) {
	switch ctx.format() {
	case formatJSON:
		return true, writeJSON(cmd, v)
	case formatYAML:
		return true, writeYAML(cmd, v)
	default:
		return false, nil
	}
}
