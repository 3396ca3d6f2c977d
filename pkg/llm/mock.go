package llm

import "context"

// MockClient is a configurable mock for testing model-driven code.
// Set GenerateJSONFunc to control behavior, or queue canned responses.
type MockClient struct {
	// GenerateJSONFunc is called when GenerateJSON is invoked.
	// If nil, responses are popped from Responses instead.
	GenerateJSONFunc func(ctx context.Context, messages []Message) (string, error)

	// Responses is a FIFO queue of canned responses consumed one per call
	// when GenerateJSONFunc is nil. When exhausted the last entry repeats.
	Responses []string

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	// Call tracking for verification.
	GenerateJSONCalls int
	// Transcripts records the messages of every call.
	Transcripts [][]Message
}

// NewMockClient creates a new mock with sensible defaults.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{
		Model:     "mock-model",
		Responses: responses,
	}
}

// GenerateJSON implements Client.
func (m *MockClient) GenerateJSON(ctx context.Context, messages []Message) (string, error) {
	idx := m.GenerateJSONCalls
	m.GenerateJSONCalls++
	m.Transcripts = append(m.Transcripts, messages)

	if m.GenerateJSONFunc != nil {
		return m.GenerateJSONFunc(ctx, messages)
	}
	if len(m.Responses) == 0 {
		return "{}", nil
	}
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	return m.Responses[idx], nil
}

// GetModel implements Client.
func (m *MockClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// Reset clears call tracking counters.
func (m *MockClient) Reset() {
	m.GenerateJSONCalls = 0
	m.Transcripts = nil
}

// Ensure MockClient implements Client at compile time.
var _ Client = (*MockClient)(nil)
