package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Policy selects what Extract does when the cleaned output is not JSON.
type Policy int

const (
	// Tolerant substitutes Options.Fallback and reports no error.
	Tolerant Policy = iota
	// Strict returns a *ParseError.
	Strict
)

func (p Policy) String() string {
	switch p {
	case Tolerant:
		return "tolerant"
	case Strict:
		return "strict"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ErrUnparseable is wrapped by every ParseError.
var ErrUnparseable = errors.New("model output is not valid JSON")

// ParseError describes output that could not be parsed under the Strict policy.
type ParseError struct {
	Raw     string
	Cleaned string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return ErrUnparseable.Error()
	}
	return fmt.Sprintf("%s: %v", ErrUnparseable, e.Err)
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUnparseable}
	}
	return []error{ErrUnparseable, e.Err}
}

// Options configures a single Extract call.
type Options struct {
	// Delimiter closes the reasoning segment. Empty disables stripping.
	Delimiter string
	Policy    Policy
	// Fallback is marshalled and returned under the Tolerant policy.
	Fallback any
	// Schema, when set, is checked against successfully parsed output.
	// A mismatch is logged and never changes the result.
	Schema *Schema
	Logger *slog.Logger
	// OnFailure is called with the raw output and parse error on the tolerant path.
	OnFailure func(raw string, err error)
}

// Result is the outcome of Extract.
type Result struct {
	Value        json.RawMessage
	Cleaned      string
	UsedFallback bool
	// ParseError is set when UsedFallback is true.
	ParseError error
}

// Extract cleans raw model output and parses it as JSON.
//
// Parsed values are returned byte-for-byte as cleaned; there is no coercion.
// Only the Strict policy can return an error for malformed content; the
// Tolerant policy returns an error only if Fallback itself cannot be marshalled.
func Extract(raw string, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cleaned := Clean(raw, opts.Delimiter)
	parseErr := parse(cleaned)
	if parseErr == nil {
		if opts.Schema != nil {
			if err := opts.Schema.Check(json.RawMessage(cleaned)); err != nil {
				logger.Warn("structured output drifted from schema",
					"schema", opts.Schema.Name(),
					"error", err)
			}
		}
		return &Result{Value: json.RawMessage(cleaned), Cleaned: cleaned}, nil
	}

	if opts.Policy == Strict {
		logger.Error("structured output parse failed",
			"policy", opts.Policy.String(),
			"error", parseErr,
			"raw", raw)
		return nil, &ParseError{Raw: raw, Cleaned: cleaned, Err: parseErr}
	}

	logger.Error("structured output parse failed, using fallback",
		"policy", opts.Policy.String(),
		"error", parseErr,
		"raw", raw)
	if opts.OnFailure != nil {
		opts.OnFailure(raw, parseErr)
	}

	fallback, err := json.Marshal(opts.Fallback)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fallback value: %w", err)
	}
	return &Result{
		Value:        fallback,
		Cleaned:      cleaned,
		UsedFallback: true,
		ParseError:   parseErr,
	}, nil
}

func parse(cleaned string) error {
	if cleaned == "" {
		return errors.New("empty output after cleanup")
	}
	var v any
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return err
	}
	return nil
}
