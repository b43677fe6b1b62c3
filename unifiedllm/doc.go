// Package unifiedllm is the conversational transport for the agent loop.
//
// A Session sends one text input at a time and returns the model's raw reply.
// Sessions keep the conversation history themselves and record an exchange
// only after a reply arrives, so a failed send leaves no trace.
//
// Two backends are provided:
//
//   - OpenAISession speaks the OpenAI chat-completions protocol through
//     github.com/openai/openai-go. Gemini, OpenAI and Azure OpenAI use it, with
//     JSON object mode requested on every call.
//   - GollmSession wraps github.com/teilomillet/gollm for the remaining
//     providers and flattens the history into a single transcript prompt.
//
// NewSession picks the backend from the provider catalog:
//
//	s, err := unifiedllm.NewSession(unifiedllm.SessionConfig{
//	    Provider:     "gemini",
//	    SystemPrompt: prompt,
//	})
//	if err != nil {
//	    // *ConfigurationError: unknown provider, missing key or endpoint
//	}
//	reply, err := s.SendMessage(ctx, "list the files here")
//
// Every SendMessage failure is a *TransportError whose cause is one of the
// provider error types in errors.go. Retryable causes are retried according
// to the session's RetryPolicy before the error is returned.
package unifiedllm
