package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mcpfleet/gateway/internal/errs"
)

// Load reads and parses the configuration document at path, validates it,
// and resolves it into a Snapshot. A malformed document or a validation
// failure is reported as a ConfigParseError; callers on first startup
// should treat that as fatal, while a reload path should log it and keep
// serving the previous Snapshot.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.ConfigParseError{Path: path, Cause: err}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &errs.ConfigParseError{Path: path, Cause: err}
	}

	if err := Validate(doc); err != nil {
		return nil, &errs.ConfigParseError{Path: path, Cause: fmt.Errorf("validate: %w", err)}
	}

	return ToSnapshot(doc), nil
}
