package unifiedllm

import (
	"context"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// Session is a stateful conversation with one backend. Each call sends one
// user input, waits for the reply and records the exchange in the session's
// private history. Every failure is returned as a *TransportError.
type Session interface {
	SendMessage(ctx context.Context, input string) (string, error)
}

// ModelLister is implemented by sessions whose backend can enumerate the
// models available to the current credential.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Describer reports which backend and model a session talks to.
type Describer interface {
	Provider() string
	Model() string
}

// SessionConfig is the immutable input to NewSession.
type SessionConfig struct {
	Provider     string
	Model        string
	APIKey       string // overrides the provider's environment variable
	BaseURL      string // overrides the catalog endpoint
	SystemPrompt string
	MaxTokens    int
	Temperature  *float64
	Retry        *RetryPolicy // nil means DefaultRetryPolicy

	// Azure only.
	AzureAPIVersion string
	Credential      azcore.TokenCredential

	// HTTPClient is used for every backend request when set.
	HTTPClient *http.Client
}

const defaultAzureAPIVersion = "2024-10-21"

// NewSession builds the session variant for cfg.Provider. It fails fast with
// a *ConfigurationError when the provider is unknown or the credential it
// needs is missing.
func NewSession(cfg SessionConfig) (Session, error) {
	name := cfg.Provider
	if strings.TrimSpace(name) == "" {
		name = DefaultProvider
	}
	info := GetProvider(name)
	if info == nil {
		return nil, newConfigurationError("unknown provider %q (known providers: %s)", name, strings.Join(ProviderNames(), ", "))
	}

	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = info.DefaultModel
	}
	if cfg.Model == "" {
		return nil, newConfigurationError("no model configured for provider %q", info.Name)
	}

	apiKey := info.ResolveAPIKey(cfg.APIKey)
	if apiKey == "" && !info.KeyOptional {
		return nil, newConfigurationError("missing credential for provider %q: set %s", info.Name, info.APIKeyEnv)
	}
	cfg.APIKey = apiKey

	policy := DefaultRetryPolicy()
	if cfg.Retry != nil {
		policy = *cfg.Retry
	}

	switch info.Transport {
	case TransportOpenAI:
		return newOpenAISession(*info, cfg, policy)
	case TransportGollm:
		return newGollmSession(*info, cfg, policy)
	default:
		return nil, newConfigurationError("provider %q has unsupported transport %q", info.Name, info.Transport)
	}
}
