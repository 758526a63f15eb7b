package en50221

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// LengthPolicy decides what happens when a length embedded inside a payload
// (a menu string length, a trailing list) does not fit the APDU's declared length.
type LengthPolicy int

const (
	// PolicyClamp shortens the embedded field to what the APDU holds, logs a warning
	// and still delivers the object. Some modules in the field send slightly
	// non-conformant lengths; this is the default.
	PolicyClamp LengthPolicy = iota

	// PolicyReject discards the APDU with ErrShortData.
	PolicyReject
)

// String returns the configuration name of the policy.
func (p LengthPolicy) String() string {
	switch p {
	case PolicyClamp:
		return "clamp"
	case PolicyReject:
		return "reject"
	default:
		return fmt.Sprintf("LengthPolicy(%d)", int(p))
	}
}

// ParseLengthPolicy converts a configuration name into a LengthPolicy.
// The empty string selects PolicyClamp.
func ParseLengthPolicy(s string) (LengthPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "clamp":
		return PolicyClamp, nil
	case "reject":
		return PolicyReject, nil
	default:
		return PolicyClamp, fmt.Errorf("unknown length policy %q (want clamp or reject)", s)
	}
}

// Option configures a resource at construction time.
type Option func(*options)

type options struct {
	logger *zap.Logger
	policy LengthPolicy
}

func defaultOptions() options {
	return options{
		logger: zap.NewNop(),
		policy: PolicyClamp,
	}
}

// WithLogger sets the logger used for protocol diagnostics. A nil logger keeps the no-op default.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLengthPolicy selects how inconsistent embedded lengths are handled.
func WithLengthPolicy(p LengthPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}
