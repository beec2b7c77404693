package params

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// ParseEnvFile parses environment file content in .env format.
// It returns a map of key-value pairs. Double-quoted and unquoted values
// expand ${VAR} references to earlier keys or the process environment.
func ParseEnvFile(content []byte) (map[string]string, error) {
	result, err := godotenv.UnmarshalBytes(content)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LoadFiles reads typed parameters from .env files. Later files override
// earlier ones.
func LoadFiles(logger tablekit.Logger, paths ...string) (tablekit.Params, error) {
	merged := make(tablekit.Params)

	for _, path := range paths {
		logger.Verbose("Loading parameters from file: %s", path)

		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read params file '%s': %w", path, err)
		}

		raw, err := ParseEnvFile(content)
		if err != nil {
			return nil, fmt.Errorf("failed to parse params file '%s': %v: %w", path, err, tablekit.ErrBadParameters)
		}

		typed, err := Typed(raw)
		if err != nil {
			return nil, fmt.Errorf("params file '%s': %w", path, err)
		}

		merged = Merge(merged, typed)
		logger.Verbose("Loaded %d parameters from file (total: %d)", len(typed), len(merged))
	}

	return merged, nil
}
