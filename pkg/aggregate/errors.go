package aggregate

import (
	"fmt"
	"strings"
)

// ConfigurationError means a composite can't be resolved against the included builds.
// Nothing has run when this is returned.
type ConfigurationError struct {
	Composite string
	Unknown   []string
	Reason    string
}

var _ error = (*ConfigurationError)(nil)

func (e *ConfigurationError) Error() string {
	var msg strings.Builder
	msg.WriteString("configuration error")
	if e.Composite != "" {
		fmt.Fprintf(&msg, " in composite %s", e.Composite)
	}

	if len(e.Unknown) > 0 {
		fmt.Fprintf(&msg, ": %s", strings.Join(e.Unknown, ", "))
	}

	if e.Reason != "" {
		fmt.Fprintf(&msg, ": %s", e.Reason)
	}
	return msg.String()
}

// PropagatedFailure is returned by Composite.Run if at least one dependency did not succeed.
type PropagatedFailure struct {
	Composite string
	Failed    []Result
}

var _ error = (*PropagatedFailure)(nil)

func (e *PropagatedFailure) Error() string {
	names := make([]string, len(e.Failed))
	for idx, item := range e.Failed {
		if item.Err != nil {
			names[idx] = fmt.Sprintf("%s (%v)", item.Task, item.Err)
		} else {
			names[idx] = item.Task.String()
		}
	}

	return fmt.Sprintf("composite %s failed due to %s", e.Composite, strings.Join(names, ", "))
}

func (e *PropagatedFailure) Unwrap() []error {
	result := make([]error, 0, len(e.Failed))
	for _, item := range e.Failed {
		if item.Err != nil {
			result = append(result, item.Err)
		}
	}
	return result
}

// Tasks lists the failed dependencies
func (e *PropagatedFailure) Tasks() []TaskPath {
	result := make([]TaskPath, len(e.Failed))
	for idx, item := range e.Failed {
		result[idx] = item.Task
	}
	return result
}
