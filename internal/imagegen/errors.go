package imagegen

import (
	"fmt"
	"strings"
)

// invalidParamsError rejects a request before any subprocess is launched.
type invalidParamsError struct{ msg string }

func (e invalidParamsError) Error() string { return e.msg }

func ErrInvalidParams(msg string) error { return invalidParamsError{msg: msg} }

// IsInvalidParams reports whether err is a parameter-validation failure.
func IsInvalidParams(err error) bool {
	_, ok := err.(invalidParamsError)
	return ok
}

// notFoundError marks a missing binary or model file.
type notFoundError struct {
	what string
	path string
}

func (e notFoundError) Error() string { return fmt.Sprintf("%s not found: %s", e.what, e.path) }

func ErrNotFound(what, path string) error { return notFoundError{what: what, path: path} }

// IsNotFound reports whether err indicates a missing binary or model asset.
func IsNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}

// subprocessError carries the tail of the generator's output for diagnosis.
type subprocessError struct {
	err  error
	tail []string
}

func (e subprocessError) Error() string {
	if len(e.tail) == 0 {
		return fmt.Sprintf("image generation failed: %v", e.err)
	}
	return fmt.Sprintf("image generation failed: %v; output tail: %s", e.err, strings.Join(e.tail, " | "))
}

func (e subprocessError) Unwrap() error { return e.err }

func ErrSubprocess(err error, tail []string) error { return subprocessError{err: err, tail: tail} }

// IsSubprocessFailure reports whether err is a generator launch/exit failure.
func IsSubprocessFailure(err error) bool {
	_, ok := err.(subprocessError)
	return ok
}

// outputTimeoutError marks a run that exited cleanly without producing the
// declared output file.
type outputTimeoutError struct{ path string }

func (e outputTimeoutError) Error() string {
	return fmt.Sprintf("image generator did not create an output file: %s", e.path)
}

func ErrOutputTimeout(path string) error { return outputTimeoutError{path: path} }

// IsOutputTimeout reports whether err indicates a missing output file.
func IsOutputTimeout(err error) bool {
	_, ok := err.(outputTimeoutError)
	return ok
}
