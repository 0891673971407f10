// Package appid holds the static application identity used for naming the
// binary, environment variables, config paths and telemetry.
package appid

import (
	"context"
	"strings"
)

// Identity describes the application.
type Identity struct {
	BinaryName         string
	Vendor             string
	ConfigName         string
	EnvPrefix          string
	TelemetryNamespace string
	Description        string
}

var identity = Identity{
	BinaryName:         "intake",
	Vendor:             "artofficial",
	ConfigName:         "intake",
	EnvPrefix:          "INTAKE_",
	TelemetryNamespace: "intake",
	Description:        "Newsletter subscription intake service",
}

// Get returns a copy of the application identity.
func Get(_ context.Context) (*Identity, error) {
	id := identity
	return &id, nil
}

// Prefix returns the environment prefix, always ending in an underscore.
func (i *Identity) Prefix() string {
	if i == nil || strings.TrimSpace(i.EnvPrefix) == "" {
		return "INTAKE_"
	}
	if strings.HasSuffix(i.EnvPrefix, "_") {
		return i.EnvPrefix
	}
	return i.EnvPrefix + "_"
}
