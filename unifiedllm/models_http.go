package unifiedllm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

const anthropicVersion = "2023-06-01"

// listStyle selects the wire shape of a provider's model-listing endpoint.
type listStyle int

const (
	listOpenAICompatible listStyle = iota // GET models, Bearer auth, {"data":[{"id"}]}
	listAnthropic                         // GET models, x-api-key, {"data":[{"id"}]}
	listOllama                            // GET api/tags, {"models":[{"name"}]}
)

// httpModelLister reads model identifiers for providers whose client
// library has no listing call.
type httpModelLister struct {
	provider string
	baseURL  string
	apiKey   string
	style    listStyle
	client   *http.Client
}

func newHTTPModelLister(info ProviderInfo, baseURL, apiKey string, client *http.Client) *httpModelLister {
	style := listOpenAICompatible
	switch info.Name {
	case "anthropic":
		style = listAnthropic
	case "ollama":
		style = listOllama
	}
	return &httpModelLister{
		provider: info.Name,
		baseURL:  info.ResolveBaseURL(baseURL),
		apiKey:   apiKey,
		style:    style,
		client:   client,
	}
}

type modelListResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (l *httpModelLister) ListModels(ctx context.Context) ([]string, error) {
	path := "models"
	if l.style == listOllama {
		path = "api/tags"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	switch l.style {
	case listAnthropic:
		req.Header.Set("x-api-key", l.apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)
	case listOpenAICompatible:
		if l.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+l.apiKey)
		}
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, classifyMessage(l.provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &NetworkError{SDKError: SDKError{Message: "read model list", Cause: err}}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return nil, ErrorFromStatusCode(resp.StatusCode, msg, l.provider, "", nil, retryAfter(resp))
	}

	var parsed modelListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ProviderError{
			SDKError: SDKError{Message: "decode model list", Cause: err},
			Provider: l.provider,
		}
	}

	ids := make([]string, 0, len(parsed.Data)+len(parsed.Models))
	for _, m := range parsed.Data {
		ids = append(ids, m.ID)
	}
	for _, m := range parsed.Models {
		ids = append(ids, m.Name)
	}
	sort.Strings(ids)
	return ids, nil
}
