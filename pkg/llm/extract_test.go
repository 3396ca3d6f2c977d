package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/surgetech/surge-agent/pkg/retry"
)

type payload struct {
	Operation string `json:"operation"`
}

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1.0,
	}
}

func TestExtract_ValidFirstTry(t *testing.T) {
	mock := NewMockClient(`{"operation": "create"}`)

	got, err := Extract[payload](context.Background(), mock,
		[]Message{User("map this")}, &ExtractOptions[payload]{Retry: fastRetry()}, zap.NewNop())

	require.NoError(t, err)
	assert.Equal(t, "create", got.Operation)
	assert.Equal(t, 1, mock.GenerateJSONCalls)
}

func TestExtract_RepairsMalformedJSON(t *testing.T) {
	mock := NewMockClient(
		"this is not JSON",
		`{"operation": "delete"}`,
	)

	got, err := Extract[payload](context.Background(), mock,
		[]Message{User("map this")}, &ExtractOptions[payload]{Retry: fastRetry()}, zap.NewNop())

	require.NoError(t, err)
	assert.Equal(t, "delete", got.Operation)
	assert.Equal(t, 2, mock.GenerateJSONCalls)

	// The repair turn must replay the bad output and describe the failure.
	repairTranscript := mock.Transcripts[1]
	require.Len(t, repairTranscript, 3)
	assert.Equal(t, RoleAssistant, repairTranscript[1].Role)
	assert.Equal(t, "this is not JSON", repairTranscript[1].Content)
	assert.Equal(t, RoleUser, repairTranscript[2].Role)
	assert.Contains(t, repairTranscript[2].Content, "invalid")
}

func TestExtract_RepairsValidationFailure(t *testing.T) {
	mock := NewMockClient(
		`{"operation": "destroy"}`,
		`{"operation": "delete"}`,
	)

	opts := &ExtractOptions[payload]{
		Retry: fastRetry(),
		Validate: func(p payload) error {
			if p.Operation != "delete" {
				return fmt.Errorf("operation must be delete, got %q", p.Operation)
			}
			return nil
		},
	}

	got, err := Extract[payload](context.Background(), mock, []Message{User("map this")}, opts, zap.NewNop())

	require.NoError(t, err)
	assert.Equal(t, "delete", got.Operation)
	assert.Equal(t, 2, mock.GenerateJSONCalls)
	assert.Contains(t, mock.Transcripts[1][2].Content, "operation must be delete")
}

func TestExtract_RepairBudgetExhausted(t *testing.T) {
	mock := NewMockClient("still not JSON")

	_, err := Extract[payload](context.Background(), mock,
		[]Message{User("map this")},
		&ExtractOptions[payload]{MaxRepairs: 2, Retry: fastRetry()}, zap.NewNop())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 repair turns")
	// Initial turn plus two repairs.
	assert.Equal(t, 3, mock.GenerateJSONCalls)

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestExtract_TransientErrorRetriedWithoutRepairTurn(t *testing.T) {
	calls := 0
	mock := NewMockClient()
	mock.GenerateJSONFunc = func(ctx context.Context, messages []Message) (string, error) {
		calls++
		if calls == 1 {
			return "", NewError(ErrorTypeEndpoint, "request timeout", true, nil)
		}
		return `{"operation": "create"}`, nil
	}

	got, err := Extract[payload](context.Background(), mock,
		[]Message{User("map this")}, &ExtractOptions[payload]{Retry: fastRetry()}, zap.NewNop())

	require.NoError(t, err)
	assert.Equal(t, "create", got.Operation)
	assert.Equal(t, 2, calls)
	// Both calls saw the original one-message transcript.
	for _, tr := range mock.Transcripts {
		assert.Len(t, tr, 1)
	}
}

func TestExtract_PermanentErrorNotRetried(t *testing.T) {
	mock := NewMockClient()
	mock.GenerateJSONFunc = func(ctx context.Context, messages []Message) (string, error) {
		return "", NewError(ErrorTypeAuth, "authentication failed", false, nil)
	}

	_, err := Extract[payload](context.Background(), mock,
		[]Message{User("map this")}, &ExtractOptions[payload]{Retry: fastRetry()}, zap.NewNop())

	require.Error(t, err)
	assert.Equal(t, 1, mock.GenerateJSONCalls)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{"auth", errors.New("status 401 Unauthorized"), ErrorTypeAuth, false},
		{"model missing", errors.New("model gpt-x not found"), ErrorTypeModel, false},
		{"endpoint missing", errors.New("404 page not found"), ErrorTypeEndpoint, false},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorTypeEndpoint, true},
		{"timeout", errors.New("context deadline exceeded"), ErrorTypeEndpoint, true},
		{"rate limited", errors.New("429 Too Many Requests"), ErrorTypeUnknown, true},
		{"server error", errors.New("502 Bad Gateway"), ErrorTypeEndpoint, true},
		{"unknown", errors.New("something odd"), ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.retryable, got.IsRetryable())
		})
	}
}
