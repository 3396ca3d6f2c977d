package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{
			name:     "bare object",
			response: `{"operation": "create"}`,
			want:     `{"operation": "create"}`,
		},
		{
			name:     "markdown code fence",
			response: "```json\n{\"operation\": \"create\"}\n```",
			want:     `{"operation": "create"}`,
		},
		{
			name:     "prose before and after",
			response: "Here is the mapping:\n{\"operation\": \"delete\"}\nLet me know if this works.",
			want:     `{"operation": "delete"}`,
		},
		{
			name:     "think tags stripped",
			response: "<think>the predicate should use the id field</think>{\"predicate_fields\": [\"id\"]}",
			want:     `{"predicate_fields": ["id"]}`,
		},
		{
			name:     "array response",
			response: "```json\n[{\"id\": \"a\"}, {\"id\": \"b\"}]\n```",
			want:     `[{"id": "a"}, {"id": "b"}]`,
		},
		{
			name:     "nested braces inside strings",
			response: `{"note": "use {curly} text", "ok": true}`,
			want:     `{"note": "use {curly} text", "ok": true}`,
		},
		{
			name:     "no JSON at all",
			response: "I cannot produce a mapping for this input.",
			wantErr:  true,
		},
		{
			name:     "unbalanced object",
			response: `{"operation": "create"`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.response)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJSONResponse(t *testing.T) {
	type mapping struct {
		Operation string   `json:"operation"`
		Fields    []string `json:"fields"`
	}

	got, err := ParseJSONResponse[mapping]("```json\n{\"operation\": \"update\", \"fields\": [\"name\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, "update", got.Operation)
	assert.Equal(t, []string{"name"}, got.Fields)

	_, err = ParseJSONResponse[mapping](`{"operation": 42}`)
	assert.Error(t, err)
}
