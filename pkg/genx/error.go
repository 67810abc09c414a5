package genx

import (
	"errors"
	"fmt"
)

type Status int

const (
	StatusOK Status = iota
	StatusDone
	StatusTruncated
	StatusBlocked
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDone:
		return "done"
	case StatusTruncated:
		return "truncated"
	case StatusBlocked:
		return "blocked"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ErrDone is returned when the generation is done.
var ErrDone = errors.New("genx: done")

// ErrNoCandidates is returned when a provider answers without any choice.
var ErrNoCandidates = errors.New("genx: no candidates")

func Done(stats Usage) *State {
	return &State{
		usage:  stats,
		status: StatusDone,
		err:    ErrDone,
	}
}

func Blocked(stats Usage, refusal string) *State {
	return &State{
		usage:  stats,
		status: StatusBlocked,
		err:    fmt.Errorf("genx: generate blocked: %s", refusal),
	}
}

func Truncated(stats Usage) *State {
	return &State{
		usage:  stats,
		status: StatusTruncated,
		err:    errors.New("genx: generate truncated"),
	}
}

func Error(stats Usage, err error) *State {
	return &State{
		usage:  stats,
		status: StatusError,
		err:    fmt.Errorf("genx: generate error: %w", err),
	}
}

type State struct {
	usage  Usage
	status Status
	err    error
}

func (ss State) Usage() Usage {
	return ss.usage
}

func (ss State) Status() Status {
	return ss.status
}

func (ss State) Unwrap() error {
	return ss.err
}

func (ss State) Error() string {
	switch ss.status {
	case StatusDone:
		return "genx: generate done"
	case StatusTruncated:
		return ss.err.Error()
	case StatusBlocked:
		return ss.err.Error()
	case StatusError:
		return ss.err.Error()
	default:
		return fmt.Sprintf("genx: unexpected generate status: %v", ss.status)
	}
}
