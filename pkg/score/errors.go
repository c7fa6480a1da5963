package score

import (
	"fmt"
	"strings"
)

// InvalidFeatureError reports a feature vector that cannot be scored.
// It is fatal for that wallet only.
type InvalidFeatureError struct {
	Wallet string
	Field  string
	Reason string
}

func (e *InvalidFeatureError) Error() string {
	return fmt.Sprintf("invalid feature %s for wallet %q: %s", e.Field, e.Wallet, e.Reason)
}

// ModelUnavailableError is returned when scaler or regressor artifacts
// cannot be loaded.
type ModelUnavailableError struct {
	Path string
	Err  error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model artifact unavailable: %s: %v", e.Path, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error {
	return e.Err
}

// FeatureMismatchError is returned when a feature set does not match what
// the scaler or regressor was fitted on.
type FeatureMismatchError struct {
	Want []string
	Got  []string
	Msg  string
}

func (e *FeatureMismatchError) Error() string {
	msg := "feature mismatch"
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Want != nil || e.Got != nil {
		msg += fmt.Sprintf(" (want [%s], got [%s])", strings.Join(e.Want, ","), strings.Join(e.Got, ","))
	}
	return msg
}
