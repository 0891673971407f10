package newsletter

import (
	"strings"

	"github.com/artofficial/intake/internal/config"
)

// Backend identifies an external subscription provider.
type Backend string

const (
	BackendNone       Backend = ""
	BackendGhost      Backend = "ghost"
	BackendConvertKit Backend = "convertkit"
)

// autoDetectOrder is the priority used when no explicit backend is usable.
var autoDetectOrder = []Backend{BackendGhost, BackendConvertKit}

// Backends lists every known backend in auto-detection order.
func Backends() []Backend {
	out := make([]Backend, len(autoDetectOrder))
	copy(out, autoDetectOrder)
	return out
}

// ParseBackend maps a configured name to a Backend. Unknown names yield BackendNone.
func ParseBackend(name string) Backend {
	switch Backend(strings.ToLower(strings.TrimSpace(name))) {
	case BackendGhost:
		return BackendGhost
	case BackendConvertKit:
		return BackendConvertKit
	default:
		return BackendNone
	}
}

// ProviderConfig is a snapshot of which backends have credentials present.
type ProviderConfig struct {
	Explicit  Backend
	Available map[Backend]bool
}

// DetectCredentials reports credential presence from cfg. It does not check
// that credentials are valid.
func DetectCredentials(cfg *config.Config) ProviderConfig {
	pc := ProviderConfig{Available: map[Backend]bool{}}
	if cfg == nil {
		return pc
	}

	pc.Explicit = ParseBackend(cfg.Newsletter.Provider)

	ghost := cfg.Ghost
	pc.Available[BackendGhost] = present(ghost.APIURL) &&
		(present(ghost.ContentAPIKey) || present(ghost.AdminAPIKey))

	ck := cfg.ConvertKit
	pc.Available[BackendConvertKit] = present(ck.APIKey) &&
		(present(ck.FormID) || present(ck.APIBase))

	return pc
}

// Resolve picks the backend to use: the explicit one when it has credentials,
// otherwise the first available in auto-detection order, otherwise BackendNone.
func Resolve(pc ProviderConfig) Backend {
	if pc.Explicit != BackendNone && pc.Available[pc.Explicit] {
		return pc.Explicit
	}
	for _, backend := range autoDetectOrder {
		if pc.Available[backend] {
			return backend
		}
	}
	return BackendNone
}

func present(value string) bool {
	return strings.TrimSpace(value) != ""
}
