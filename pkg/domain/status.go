package domain

import "fmt"

type RunStatus string

const (
	// the run has ResultFile.
	Completed RunStatus = "completed"

	// the run does not have ResultFile: it has stopped with error, or is running.
	Failed RunStatus = "failed"
)

func (s RunStatus) String() string {
	return string(s)
}

// StatusOf returns the status of a run by whether it has ResultFile.
func StatusOf(hasResult bool) RunStatus {
	if hasResult {
		return Completed
	}
	return Failed
}

// StatusFilter selects runs by their status.
type StatusFilter int

const (
	AnyStatus StatusFilter = iota
	OnlyCompleted
	OnlyFailed
)

// StatusFilterOf builds StatusFilter from a pair of exclusive switches.
func StatusFilterOf(completed, failed bool) (StatusFilter, error) {
	switch {
	case completed && failed:
		return AnyStatus, fmt.Errorf("completed and failed are exclusive")
	case completed:
		return OnlyCompleted, nil
	case failed:
		return OnlyFailed, nil
	default:
		return AnyStatus, nil
	}
}

func (f StatusFilter) Match(s RunStatus) bool {
	switch f {
	case OnlyCompleted:
		return s == Completed
	case OnlyFailed:
		return s == Failed
	default:
		return true
	}
}
