package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/schema"
)

// configSchema constrains the merged layers before they are decoded.
//
//go:embed config.schema.json
var configSchema []byte

// loadConfigCheck compiles configSchema once. The returned check lists one
// "<pointer>: <message>" entry per diagnostic.
var loadConfigCheck = sync.OnceValues(func() (func([]byte) ([]string, error), error) {
	validator, err := schema.NewValidator(configSchema)
	if err != nil {
		return nil, err
	}
	return func(payload []byte) ([]string, error) {
		diagnostics, err := validator.ValidateJSON(payload)
		if err != nil {
			return nil, err
		}
		problems := make([]string, 0, len(diagnostics))
		for _, diag := range diagnostics {
			problems = append(problems, fmt.Sprintf("%s: %s", diag.Pointer, diag.Message))
		}
		return problems, nil
	}, nil
})

// validateLayers checks the merged configuration map against configSchema.
func validateLayers(merged map[string]any) error {
	check, err := loadConfigCheck()
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	payload, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode config for validation: %w", err)
	}

	problems, err := check(payload)
	if err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
