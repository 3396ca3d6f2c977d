package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/surgetech/surge-agent/pkg/logging"
	"github.com/surgetech/surge-agent/pkg/retry"
)

// DefaultMaxRepairs bounds the validation-feedback loop per extraction.
const DefaultMaxRepairs = 3

// ExtractOptions tunes one structured extraction.
type ExtractOptions[T any] struct {
	// MaxRepairs bounds how many times an invalid response is fed back to
	// the model with the validation error appended. Defaults to
	// DefaultMaxRepairs when zero.
	MaxRepairs int

	// Retry overrides the transient retry policy for each individual model
	// call. Defaults to retry.DefaultConfig when nil.
	Retry *retry.Config

	// Validate checks the parsed value beyond JSON well-formedness. Return
	// nil to accept, or an error describing what the model must fix.
	Validate func(T) error
}

// Extract runs the transcript through the client and parses the response into
// T, healing failures along two independent axes:
//
//   - transient transport errors retry the same call with backoff, without
//     touching the transcript;
//   - parse and validation failures append the offending output plus the
//     error to the transcript and ask the model to correct itself, up to
//     MaxRepairs extra turns.
//
// The returned error on exhaustion carries the last validation failure.
func Extract[T any](ctx context.Context, client Client, messages []Message, opts *ExtractOptions[T], logger *zap.Logger) (T, error) {
	var zero T

	if opts == nil {
		opts = &ExtractOptions[T]{}
	}
	maxRepairs := opts.MaxRepairs
	if maxRepairs <= 0 {
		maxRepairs = DefaultMaxRepairs
	}
	retryCfg := opts.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}

	// Repair turns grow the transcript, so work on a copy.
	transcript := make([]Message, len(messages), len(messages)+2*maxRepairs)
	copy(transcript, messages)

	var lastErr error

	for turn := 0; turn <= maxRepairs; turn++ {
		raw, err := retry.DoIfRetryableWithResult(ctx, retryCfg, func() (string, error) {
			return client.GenerateJSON(ctx, transcript)
		})
		if err != nil {
			return zero, fmt.Errorf("model call: %w", err)
		}

		result, verr := validateResponse[T](raw, opts.Validate)
		if verr == nil {
			if turn > 0 {
				logger.Info("extraction recovered after repair",
					zap.Int("repair_turns", turn))
			}
			return result, nil
		}

		lastErr = verr
		logger.Warn("model output failed validation",
			zap.Int("turn", turn),
			zap.String("reason", verr.Reason),
			zap.String("output", logging.TruncateString(raw, logging.MaxPayloadLogLength)))

		if turn < maxRepairs {
			transcript = append(transcript,
				Assistant(raw),
				User(fmt.Sprintf("Your previous response was invalid: %s. Correct the problem and return only the valid JSON, nothing else.", verr.Reason)))
		}
	}

	return zero, fmt.Errorf("extraction failed after %d repair turns: %w", maxRepairs, lastErr)
}

// validateResponse parses raw into T and applies the caller's check. Any
// failure comes back as a *ValidationError carrying the raw output.
func validateResponse[T any](raw string, validate func(T) error) (T, *ValidationError) {
	result, err := ParseJSONResponse[T](raw)
	if err != nil {
		var zero T
		return zero, Validationf(raw, "response is not valid JSON for the expected shape: %v", err)
	}

	if validate != nil {
		if err := validate(result); err != nil {
			if ve, ok := AsValidation(err); ok {
				if ve.Output == "" {
					ve.Output = raw
				}
				return result, ve
			}
			return result, Validationf(raw, "%v", err)
		}
	}

	return result, nil
}
