package phase

import (
	"context"
	"errors"
	"fmt"
)

// ProviderError wraps any failure of a remote classification provider:
// transport errors, non-success responses and expired deadlines.
type ProviderError struct {
	Provider string
	Cause    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Cause)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// Timeout reports whether the provider call exceeded its time budget.
func (e *ProviderError) Timeout() bool {
	return errors.Is(e.Cause, context.DeadlineExceeded)
}

// maxRawRunes caps how much of an unparseable response ParseError reports.
const maxRawRunes = 120

// ParseError is returned when no parsing strategy could extract a result.
type ParseError struct {
	Provider string
	Raw      string
}

func (e *ParseError) Error() string {
	raw := e.Raw
	if r := []rune(raw); len(r) > maxRawRunes {
		raw = string(r[:maxRawRunes]) + "..."
	}
	return fmt.Sprintf("provider %s: unparseable response %q", e.Provider, raw)
}
