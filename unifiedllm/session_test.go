package unifiedllm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionConfigurationErrors(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	tests := []struct {
		name    string
		cfg     SessionConfig
		wantMsg string
	}{
		{"unknown provider", SessionConfig{Provider: "watsonx", APIKey: "k"}, `unknown provider "watsonx"`},
		{"missing gemini key", SessionConfig{Provider: "gemini"}, "GEMINI_API_KEY"},
		{"missing openai key", SessionConfig{Provider: "openai", Model: "gpt-4o"}, "OPENAI_API_KEY"},
		{"default provider needs key", SessionConfig{}, "GEMINI_API_KEY"},
		{"azure without endpoint", SessionConfig{Provider: "azure", APIKey: "k"}, "AZURE_OPENAI_ENDPOINT"},
	}

	t.Setenv("AZURE_OPENAI_ENDPOINT", "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSession(tt.cfg)
			assert.Nil(t, s)
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.False(t, IsRetryable(err))
		})
	}
}

func TestNewSessionDefaultsModel(t *testing.T) {
	s, err := NewSession(SessionConfig{Provider: "gemini", APIKey: "k"})
	require.NoError(t, err)

	d, ok := s.(Describer)
	require.True(t, ok)
	assert.Equal(t, "gemini", d.Provider())
	assert.Equal(t, "gemini-2.0-flash-lite-preview-02-05", d.Model())
}

func TestNewSessionAzureWithKey(t *testing.T) {
	s, err := NewSession(SessionConfig{Provider: "azure", APIKey: "k", BaseURL: "https://example.openai.azure.com", Model: "my-deployment"})
	require.NoError(t, err)
	assert.Equal(t, "my-deployment", s.(Describer).Model())
}

// chatServer is a minimal OpenAI-compatible backend.
type chatServer struct {
	t        *testing.T
	mu       sync.Mutex
	requests []map[string]interface{}
	auth     []string
	replies  []func(w http.ResponseWriter)
}

func (c *chatServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(c.t, json.NewDecoder(r.Body).Decode(&body))

		c.mu.Lock()
		c.requests = append(c.requests, body)
		c.auth = append(c.auth, r.Header.Get("Authorization"))
		n := len(c.requests)
		var reply func(http.ResponseWriter)
		if n <= len(c.replies) {
			reply = c.replies[n-1]
		}
		c.mu.Unlock()

		if reply == nil {
			completion(w, `{"tool":"finish"}`)
			return
		}
		reply(w)
	})
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[
			{"id":"models/gemini-b","object":"model","created":0,"owned_by":"google"},
			{"id":"models/gemini-a","object":"model","created":0,"owned_by":"google"}]}`)
	})
	return mux
}

func completion(w http.ResponseWriter, content string) {
	quoted, _ := json.Marshal(content)
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"id":"chatcmpl-1","object":"chat.completion","created":0,"model":"m",
		"choices":[{"index":0,"finish_reason":"stop","logprobs":null,
		"message":{"role":"assistant","content":%s,"refusal":null}}]}`, quoted)
}

func apiError(status int, code, message string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error":{"message":%q,"type":"error","code":%q}}`, message, code)
	}
}

func newTestOpenAISession(t *testing.T, srv *chatServer, retries int) Session {
	t.Helper()
	server := httptest.NewServer(srv.handler())
	t.Cleanup(server.Close)

	policy := fastPolicy(retries)
	s, err := NewSession(SessionConfig{
		Provider:     "gemini",
		Model:        "gemini-test",
		APIKey:       "secret",
		BaseURL:      server.URL,
		SystemPrompt: "reply in JSON",
		Retry:        &policy,
	})
	require.NoError(t, err)
	return s
}

func messageRoles(req map[string]interface{}) []string {
	var roles []string
	for _, m := range req["messages"].([]interface{}) {
		roles = append(roles, m.(map[string]interface{})["role"].(string))
	}
	return roles
}

func TestOpenAISessionRequestsJSONObjectMode(t *testing.T) {
	srv := &chatServer{t: t, replies: []func(http.ResponseWriter){
		func(w http.ResponseWriter) { completion(w, `{"thought":"t","tool":""}`) },
	}}
	s := newTestOpenAISession(t, srv, 0)

	reply, err := s.SendMessage(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"thought":"t","tool":""}`, reply)

	require.Len(t, srv.requests, 1)
	req := srv.requests[0]
	assert.Equal(t, "gemini-test", req["model"])
	assert.Equal(t, map[string]interface{}{"type": "json_object"}, req["response_format"])
	assert.Equal(t, []string{"system", "user"}, messageRoles(req))
	assert.Equal(t, "Bearer secret", srv.auth[0])
}

func TestOpenAISessionAccumulatesHistory(t *testing.T) {
	srv := &chatServer{t: t, replies: []func(http.ResponseWriter){
		func(w http.ResponseWriter) { completion(w, `{"n":1}`) },
		func(w http.ResponseWriter) { completion(w, `{"n":2}`) },
	}}
	s := newTestOpenAISession(t, srv, 0)

	_, err := s.SendMessage(context.Background(), "first")
	require.NoError(t, err)
	_, err = s.SendMessage(context.Background(), "second")
	require.NoError(t, err)

	require.Len(t, srv.requests, 2)
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, messageRoles(srv.requests[1]))
	assert.Equal(t, 4, s.(*OpenAISession).history.Len())
}

func TestOpenAISessionRetriesServerErrors(t *testing.T) {
	srv := &chatServer{t: t, replies: []func(http.ResponseWriter){
		apiError(http.StatusServiceUnavailable, "unavailable", "overloaded"),
		func(w http.ResponseWriter) { completion(w, `{"ok":true}`) },
	}}
	s := newTestOpenAISession(t, srv, 1)

	reply, err := s.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, reply)
	assert.Len(t, srv.requests, 2)
}

func TestOpenAISessionFailureIsTransportErrorAndKeepsHistory(t *testing.T) {
	srv := &chatServer{t: t, replies: []func(http.ResponseWriter){
		apiError(http.StatusUnauthorized, "invalid_api_key", "bad key"),
	}}
	s := newTestOpenAISession(t, srv, 3)

	_, err := s.SendMessage(context.Background(), "hi")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	var auth *AuthenticationError
	require.ErrorAs(t, err, &auth)
	assert.Equal(t, "gemini", auth.Provider)
	assert.Equal(t, "invalid_api_key", auth.ErrorCode)

	assert.Len(t, srv.requests, 1, "authentication errors are not retried")
	assert.Equal(t, 0, s.(*OpenAISession).history.Len())
}

func TestOpenAISessionListModels(t *testing.T) {
	srv := &chatServer{t: t}
	s := newTestOpenAISession(t, srv, 0)

	lister, ok := s.(ModelLister)
	require.True(t, ok)
	ids, err := lister.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gemini-a", "gemini-b"}, ids)
}

func TestRetryAfterHeader(t *testing.T) {
	assert.Nil(t, retryAfter(nil))

	resp := &http.Response{Header: http.Header{}}
	assert.Nil(t, retryAfter(resp))

	resp.Header.Set("Retry-After", "2.5")
	require.NotNil(t, retryAfter(resp))
	assert.Equal(t, 2.5, *retryAfter(resp))

	resp.Header.Set("Retry-After", "Wed, 21 Oct 2015 07:28:00 GMT")
	assert.Nil(t, retryAfter(resp))
}
