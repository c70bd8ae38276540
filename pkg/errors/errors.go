// Error wrapper recording where it is created.
//
// Usage:
//
//	return xe.Wrap(err)
//
// The message of a wrapped error looks like
//
//	@ funcname "file" lLINE <- original message
//
// and wrapping repeatedly gives you a "stack" of marks.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

type ErrWithCaller struct {
	file     string
	line     int
	funcname string
	note     string
	err      error
}

func (e *ErrWithCaller) File() string { return e.file }
func (e *ErrWithCaller) Line() int    { return e.line }

func (e *ErrWithCaller) Error() string {
	if e.note == "" {
		return fmt.Sprintf(`@ %s "%s" l%d <- %s`, e.funcname, e.file, e.line, e.err)
	}
	return fmt.Sprintf(`@ %s "%s" l%d (%s) <- %s`, e.funcname, e.file, e.line, e.note, e.err)
}

func (e *ErrWithCaller) Unwrap() error {
	return e.err
}

func New(text string) error {
	return wrap("", errors.New(text))
}

// Wrap marks err with the caller. nil is passed through.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return wrap("", err)
}

// WrapWithNote is Wrap with a short note, like a file name being handled.
func WrapWithNote(note string, err error) error {
	if err == nil {
		return nil
	}
	return wrap(note, err)
}

func wrap(note string, err error) error {
	funcname := "(unknown func)"
	pc, file, line, ok := runtime.Caller(2)
	if !ok {
		file, line = "?", -1
	} else if fn := runtime.FuncForPC(pc); fn != nil {
		funcname = fn.Name()
	}

	return &ErrWithCaller{funcname: funcname, file: file, line: line, note: note, err: err}
}
