package assets

import "fmt"

// checksumMismatchError distinguishes "downloaded something untrustworthy"
// from ordinary download failures. The file is left on disk for inspection.
type checksumMismatchError struct {
	name     string
	expected string
	actual   string
}

func (e checksumMismatchError) Error() string {
	return fmt.Sprintf("checksum validation failed for %s: expected %s but got %s",
		e.name, e.expected, e.actual)
}

// ErrChecksumMismatch constructs a checksum error for the named asset.
func ErrChecksumMismatch(name, expected, actual string) error {
	return checksumMismatchError{name: name, expected: expected, actual: actual}
}

// IsChecksumMismatch reports whether err indicates a digest mismatch after
// an otherwise successful download.
func IsChecksumMismatch(err error) bool {
	_, ok := err.(checksumMismatchError)
	return ok
}
