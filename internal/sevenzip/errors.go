package sevenzip

import "errors"

// Sentinel errors returned (wrapped) by the reader. Match with errors.Is.
var (
	// ErrFormat means the input is not a 7z archive: bad magic, unsupported
	// major version or a start header whose CRC does not validate.
	ErrFormat = errors.New("not a valid 7z archive")

	// ErrMalformedHeader is a structural violation found while parsing the
	// header database.
	ErrMalformedHeader = errors.New("malformed 7z header")

	// ErrMalformedFolder is a folder whose coder graph cannot be evaluated:
	// cycles, dangling bindings or not exactly one unbound output.
	ErrMalformedFolder = errors.New("malformed 7z folder")

	// ErrTruncated means a buffer ran out in the middle of a value.
	ErrTruncated = errors.New("truncated 7z data")

	// ErrNoPassword is returned when an encrypted folder is decoded without a
	// password. Supply one with Archive.SetPassword and retry.
	ErrNoPassword = errors.New("password required")

	// ErrWrongPassword is returned when an encrypted folder fails to decode or
	// fails its CRC check. The codec cannot tell a bad key from bad data, so
	// this is the best available signal.
	ErrWrongPassword = errors.New("wrong password")

	// ErrCRCMismatch is never returned by File.CheckCRC; callers that treat a
	// mismatch as fatal (extraction, the test command) wrap it.
	ErrCRCMismatch = errors.New("crc mismatch")
)
