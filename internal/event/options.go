package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/stockroom/internal/logging"
)

// FailurePolicy decides what a dispatch pass does when a listener fails.
type FailurePolicy int

const (
	// FailFast stops the pass at the first failing listener and returns its
	// error. Listeners after it are not invoked in that pass.
	FailFast FailurePolicy = iota
	// ContinueOnError invokes every listener and returns all failures joined.
	ContinueOnError
)

// String returns the configuration name of the policy.
func (p FailurePolicy) String() string {
	switch p {
	case FailFast:
		return "fail_fast"
	case ContinueOnError:
		return "continue"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// ParseFailurePolicy converts a configuration string to a FailurePolicy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail_fast", "fail-fast":
		return FailFast, nil
	case "continue", "continue_on_error":
		return ContinueOnError, nil
	default:
		return FailFast, fmt.Errorf("unknown failure policy %q", s)
	}
}

// ValidFailurePolicies returns the accepted configuration names.
func ValidFailurePolicies() []string {
	return []string{FailFast.String(), ContinueOnError.String()}
}

// Recorder observes completed dispatch passes. ObserveDispatch is called
// once per Notify, including passes that found no listeners (invoked == 0).
// Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveDispatch(topic string, invoked, failed int, elapsed time.Duration)
}

type settings struct {
	policy   FailurePolicy
	logger   *logging.Logger
	recorder Recorder
}

// Option configures a Bus.
type Option func(*settings)

// WithLogger routes bus diagnostics (listener failures, panics) to logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFailurePolicy selects how listener failures affect a dispatch pass.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(s *settings) {
		s.policy = p
	}
}

// WithRecorder attaches a dispatch Recorder, typically a metrics collector.
func WithRecorder(r Recorder) Option {
	return func(s *settings) {
		s.recorder = r
	}
}
