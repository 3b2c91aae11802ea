package main

import (
	"errors"
	"fmt"
)

// Exit codes.
const (
	exitSuccess      = 0
	exitFailure      = 1 // verification found problems, a sync round failed
	exitCommandError = 2 // bad flags, missing config, unreadable database
)

// exitError carries a process exit code with an error.
type exitError struct {
	Code    int
	Message string
	Err     error
}

func (e *exitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *exitError) Unwrap() error { return e.Err }

func newExitError(code int, message string) *exitError {
	return &exitError{Code: code, Message: message}
}

func wrapExitError(code int, message string, err error) *exitError {
	return &exitError{Code: code, Message: message, Err: err}
}

// getExitCode returns exitFailure for errors without a code.
func getExitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return exitFailure
}
