package unifiedllm

import (
	"os"
	"sort"
	"strings"
)

// Transport names the client library a provider is reached through.
type Transport string

const (
	TransportOpenAI Transport = "openai" // openai-go, JSON-object response mode
	TransportGollm  Transport = "gollm"
)

// ProviderInfo describes a backend a session can be built for.
type ProviderInfo struct {
	Name         string    `json:"name"`
	DisplayName  string    `json:"display_name"`
	Transport    Transport `json:"transport"`
	APIKeyEnv    string    `json:"api_key_env,omitempty"`
	EndpointEnv  string    `json:"endpoint_env,omitempty"`
	BaseURL      string    `json:"base_url,omitempty"`
	DefaultModel string    `json:"default_model"`
	// KeyOptional providers run without an API key: local servers, or Azure
	// falling back to an Azure AD token.
	KeyOptional bool `json:"key_optional"`
}

// DefaultProvider is used when configuration names none.
const DefaultProvider = "gemini"

// Providers is the built-in provider catalog.
var Providers = []ProviderInfo{
	{
		Name: "gemini", DisplayName: "Google Gemini", Transport: TransportOpenAI,
		APIKeyEnv:    "GEMINI_API_KEY",
		BaseURL:      "https://generativelanguage.googleapis.com/v1beta/openai/",
		DefaultModel: "gemini-2.0-flash-lite-preview-02-05",
	},
	{
		Name: "openai", DisplayName: "OpenAI", Transport: TransportOpenAI,
		APIKeyEnv:    "OPENAI_API_KEY",
		BaseURL:      "https://api.openai.com/v1/",
		DefaultModel: "gpt-4o-mini",
	},
	{
		Name: "azure", DisplayName: "Azure OpenAI", Transport: TransportOpenAI,
		APIKeyEnv:    "AZURE_OPENAI_API_KEY",
		EndpointEnv:  "AZURE_OPENAI_ENDPOINT",
		DefaultModel: "gpt-4o",
		KeyOptional:  true,
	},
	{
		Name: "anthropic", DisplayName: "Anthropic", Transport: TransportGollm,
		APIKeyEnv:    "ANTHROPIC_API_KEY",
		BaseURL:      "https://api.anthropic.com/v1/",
		DefaultModel: "claude-sonnet-4-5",
	},
	{
		Name: "groq", DisplayName: "Groq", Transport: TransportGollm,
		APIKeyEnv:    "GROQ_API_KEY",
		BaseURL:      "https://api.groq.com/openai/v1/",
		DefaultModel: "llama-3.3-70b-versatile",
	},
	{
		Name: "mistral", DisplayName: "Mistral", Transport: TransportGollm,
		APIKeyEnv:    "MISTRAL_API_KEY",
		BaseURL:      "https://api.mistral.ai/v1/",
		DefaultModel: "mistral-small-latest",
	},
	{
		Name: "ollama", DisplayName: "Ollama", Transport: TransportGollm,
		EndpointEnv:  "OLLAMA_HOST",
		BaseURL:      "http://localhost:11434/",
		DefaultModel: "llama3.2",
		KeyOptional:  true,
	},
}

// GetProvider returns the catalog entry for a provider name, or nil if the
// provider is unknown. Matching is case-insensitive.
func GetProvider(name string) *ProviderInfo {
	name = strings.ToLower(strings.TrimSpace(name))
	for i := range Providers {
		if Providers[i].Name == name {
			return &Providers[i]
		}
	}
	return nil
}

// ProviderNames returns the sorted names of all known providers.
func ProviderNames() []string {
	names := make([]string, 0, len(Providers))
	for _, p := range Providers {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// ResolveAPIKey returns explicit when set, otherwise the provider's
// environment variable.
func (p ProviderInfo) ResolveAPIKey(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(p.APIKeyEnv))
}

// ResolveBaseURL returns explicit when set, then the provider's endpoint
// environment variable, then the catalog default. The result always ends
// with a slash.
func (p ProviderInfo) ResolveBaseURL(explicit string) string {
	url := explicit
	if url == "" && p.EndpointEnv != "" {
		url = strings.TrimSpace(os.Getenv(p.EndpointEnv))
	}
	if url == "" {
		url = p.BaseURL
	}
	if url != "" && !strings.HasSuffix(url, "/") {
		url += "/"
	}
	return url
}
