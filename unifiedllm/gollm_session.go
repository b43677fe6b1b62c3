package unifiedllm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/teilomillet/gollm"
)

// generateFunc sends one flattened prompt with an optional system prompt.
type generateFunc func(ctx context.Context, system, prompt string) (string, error)

// GollmSession wraps a gollm.LLM. gollm takes a single prompt per call, so
// the session keeps the role-tagged history itself and flattens it into a
// transcript on every send. There is no JSON response mode here; replies rely
// on the decision parser's leniency.
type GollmSession struct {
	provider string
	model    string
	system   string
	retry    RetryPolicy
	generate generateFunc
	lister   *httpModelLister
	history  History
}

func newGollmSession(info ProviderInfo, cfg SessionConfig, policy RetryPolicy) (*GollmSession, error) {
	endpoint, err := gollmEndpoint(info, cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	temperature := 0.7
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}

	opts := []gollm.ConfigOption{
		gollm.SetProvider(info.Name),
		gollm.SetModel(cfg.Model),
		gollm.SetMaxTokens(maxTokens),
		gollm.SetTemperature(temperature),
		gollm.SetMaxRetries(0), // retries are ours
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.APIKey != "" {
		opts = append(opts, gollm.SetAPIKey(cfg.APIKey))
	}
	if endpoint != "" {
		opts = append(opts, gollm.SetOllamaEndpoint(endpoint))
	}

	llm, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("failed to create gollm LLM for provider %s", info.Name),
			Cause:   err,
		}}
	}

	generate := func(ctx context.Context, system, text string) (string, error) {
		var promptOpts []gollm.PromptOption
		if system != "" {
			promptOpts = append(promptOpts, gollm.WithSystemPrompt(system, gollm.CacheTypeEphemeral))
		}
		promptOpts = append(promptOpts, gollm.WithMaxLength(maxTokens))
		return llm.Generate(ctx, gollm.NewPrompt(text, promptOpts...))
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &GollmSession{
		provider: info.Name,
		model:    cfg.Model,
		system:   cfg.SystemPrompt,
		retry:    policy,
		generate: generate,
		lister:   newHTTPModelLister(info, cfg.BaseURL, cfg.APIKey, httpClient),
	}, nil
}

// gollmEndpoint resolves the generation endpoint gollm should use. Only
// Ollama's endpoint is configurable in gollm; a base URL for any other gollm
// provider would reach the model lister but not generation, so it is refused.
func gollmEndpoint(info ProviderInfo, baseURL string) (string, error) {
	if info.Name != "ollama" {
		if strings.TrimSpace(baseURL) != "" {
			return "", newConfigurationError("provider %q does not support base_url", info.Name)
		}
		return "", nil
	}
	return strings.TrimRight(info.ResolveBaseURL(baseURL), "/"), nil
}

func (s *GollmSession) Provider() string { return s.provider }
func (s *GollmSession) Model() string    { return s.model }

// SendMessage flattens the history plus input into one prompt, generates a
// reply and records the exchange.
func (s *GollmSession) SendMessage(ctx context.Context, input string) (string, error) {
	prompt := s.history.Transcript(input)

	reply, err := Retry(ctx, s.retry, func(ctx context.Context) (string, error) {
		text, err := s.generate(ctx, s.system, prompt)
		if err != nil {
			return "", classifyMessage(s.provider, err)
		}
		if strings.TrimSpace(text) == "" {
			return "", &ProviderError{
				SDKError:  SDKError{Message: "empty response"},
				Provider:  s.provider,
				Retryable: true,
			}
		}
		return text, nil
	})
	if err != nil {
		return "", NewTransportError(s.provider, err)
	}

	s.history.Commit(input, reply)
	return reply, nil
}

// ListModels queries the provider's model-listing endpoint directly; gollm
// has no listing API.
func (s *GollmSession) ListModels(ctx context.Context) ([]string, error) {
	if s.lister == nil {
		return nil, newConfigurationError("provider %q cannot list models", s.provider)
	}
	ids, err := s.lister.ListModels(ctx)
	if err != nil {
		return nil, NewTransportError(s.provider, err)
	}
	return ids, nil
}
