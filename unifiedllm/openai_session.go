package unifiedllm

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// OpenAISession talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, Gemini's compatibility layer, Azure OpenAI). Every request asks
// for a JSON object response.
type OpenAISession struct {
	provider    string
	model       string
	client      openai.Client
	system      string
	maxTokens   int
	temperature *float64
	retry       RetryPolicy
	history     History
}

func newOpenAISession(info ProviderInfo, cfg SessionConfig, policy RetryPolicy) (*OpenAISession, error) {
	opts := []option.RequestOption{
		option.WithMaxRetries(0), // retries are ours
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	if info.Name == "azure" {
		azureOpts, err := azureOptions(info, cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, azureOpts...)
	} else {
		opts = append(opts, option.WithBaseURL(info.ResolveBaseURL(cfg.BaseURL)))
		if cfg.APIKey != "" {
			opts = append(opts, option.WithAPIKey(cfg.APIKey))
		}
	}

	return &OpenAISession{
		provider:    info.Name,
		model:       cfg.Model,
		client:      openai.NewClient(opts...),
		system:      cfg.SystemPrompt,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		retry:       policy,
	}, nil
}

// azureOptions authenticates with the API key when one is configured and
// with an Azure AD token otherwise.
func azureOptions(info ProviderInfo, cfg SessionConfig) ([]option.RequestOption, error) {
	endpoint := info.ResolveBaseURL(cfg.BaseURL)
	if endpoint == "" {
		return nil, newConfigurationError("missing endpoint for provider %q: set %s", info.Name, info.EndpointEnv)
	}
	version := cfg.AzureAPIVersion
	if version == "" {
		version = defaultAzureAPIVersion
	}

	opts := []option.RequestOption{azure.WithEndpoint(endpoint, version)}
	if cfg.APIKey != "" {
		return append(opts, azure.WithAPIKey(cfg.APIKey)), nil
	}

	var cred azcore.TokenCredential = cfg.Credential
	if cred == nil {
		dac, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, &ConfigurationError{SDKError: SDKError{
				Message: "no AZURE_OPENAI_API_KEY and no usable Azure AD credential",
				Cause:   err,
			}}
		}
		cred = dac
	}
	return append(opts, azure.WithTokenCredential(cred)), nil
}

func (s *OpenAISession) Provider() string { return s.provider }
func (s *OpenAISession) Model() string    { return s.model }

// SendMessage sends input with the accumulated history and records the
// exchange once the backend answers.
func (s *OpenAISession) SendMessage(ctx context.Context, input string) (string, error) {
	params := s.buildParams(input)

	reply, err := Retry(ctx, s.retry, func(ctx context.Context) (string, error) {
		resp, err := s.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", s.translateError(err)
		}
		if len(resp.Choices) == 0 {
			return "", &ProviderError{
				SDKError:  SDKError{Message: "response contained no choices"},
				Provider:  s.provider,
				Retryable: true,
			}
		}
		msg := resp.Choices[0].Message
		if msg.Refusal != "" {
			return "", &ContentFilterError{ProviderError: ProviderError{
				SDKError: SDKError{Message: "model refused: " + msg.Refusal},
				Provider: s.provider,
			}}
		}
		return msg.Content, nil
	})
	if err != nil {
		return "", NewTransportError(s.provider, err)
	}

	s.history.Commit(input, reply)
	return reply, nil
}

func (s *OpenAISession) buildParams(input string) openai.ChatCompletionNewParams {
	history := s.history.Messages()
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	if s.system != "" {
		messages = append(messages, openai.SystemMessage(s.system))
	}
	for _, msg := range history {
		switch msg.Role {
		case RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}
	messages = append(messages, openai.UserMessage(input))

	jsonObject := shared.NewResponseFormatJSONObjectParam()
	params := openai.ChatCompletionNewParams{
		Model:    s.model,
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &jsonObject,
		},
	}
	if s.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(s.maxTokens))
	}
	if s.temperature != nil {
		params.Temperature = openai.Float(*s.temperature)
	}
	return params
}

// ListModels returns the model identifiers the endpoint reports, sorted.
func (s *OpenAISession) ListModels(ctx context.Context) ([]string, error) {
	iter := s.client.Models.ListAutoPaging(ctx)
	var ids []string
	for iter.Next() {
		ids = append(ids, strings.TrimPrefix(iter.Current().ID, "models/"))
	}
	if err := iter.Err(); err != nil {
		return nil, NewTransportError(s.provider, s.translateError(err))
	}
	sort.Strings(ids)
	return ids, nil
}

// translateError converts an openai-go error into the unified error hierarchy.
func (s *OpenAISession) translateError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return ErrorFromStatusCode(apiErr.StatusCode, msg, s.provider, apiErr.Code, err, retryAfter(apiErr.Response))
	}
	return classifyMessage(s.provider, err)
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(resp *http.Response) *float64 {
	if resp == nil {
		return nil
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return nil
	}
	return &secs
}
