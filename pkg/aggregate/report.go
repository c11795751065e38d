package aggregate

import "time"

type Status int

const (
	StatusSkipped Status = iota
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Result records what happened to one dependency of a composite
type Result struct {
	Task     TaskPath
	Status   Status
	Err      error
	Duration time.Duration
}

// Report contains one result per dependency in declaration order.
type Report struct {
	Composite string
	Results   []Result
}

// Succeeded is true if every dependency succeeded. An empty composite succeeds.
func (r *Report) Succeeded() bool {
	for _, item := range r.Results {
		if item.Status != StatusSucceeded {
			return false
		}
	}
	return true
}

// Count returns the number of results with the given status
func (r *Report) Count(status Status) int {
	n := 0
	for _, item := range r.Results {
		if item.Status == status {
			n++
		}
	}
	return n
}

func (r *Report) failure() error {
	failed := make([]Result, 0)
	for _, item := range r.Results {
		if item.Status == StatusFailed || (item.Status == StatusSkipped && item.Err != nil) {
			failed = append(failed, item)
		}
	}

	if len(failed) == 0 {
		if r.Succeeded() {
			return nil
		}

		// only skipped dependencies left without a cause of their own
		for _, item := range r.Results {
			if item.Status != StatusSucceeded {
				failed = append(failed, item)
			}
		}
	}

	return &PropagatedFailure{
		Composite: r.Composite,
		Failed:    failed,
	}
}
