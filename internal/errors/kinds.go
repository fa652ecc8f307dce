package errors

import "strconv"

// This file adds named error-kind constructors for the
// extraction/chunking/indexing pipeline — sugar over the same MavenError
// catalog the ConfigError/IOError/NetworkError constructors use, not a
// replacement for it.

// NotFoundError reports a path that does not exist.
func NotFoundError(path string, cause error) *MavenError {
	return New(ErrCodeFileNotFound, "not found: "+path, cause).WithDetail("path", path)
}

// NotAFileError reports a path that exists but is a directory (or other
// non-regular-file entry) where a file was required.
func NotAFileError(path string) *MavenError {
	return New(ErrCodeNotAFile, "not a file: "+path, nil).WithDetail("path", path)
}

// UnsupportedError reports a path no registered extractor claims.
func UnsupportedError(path string) *MavenError {
	return New(ErrCodeUnsupported, "unsupported file type: "+path, nil).WithDetail("path", path)
}

// TooLargeError reports a file exceeding the configured max file size.
func TooLargeError(path string, size, max int64) *MavenError {
	return New(ErrCodeFileTooLarge, "file too large: "+path, nil).
		WithDetail("path", path).
		WithDetail("size", strconv.FormatInt(size, 10)).
		WithDetail("max", strconv.FormatInt(max, 10))
}

// DecodeError reports content that could not be decoded as text by any
// fallback encoding (UTF-8 -> UTF-8-replace -> Latin-1 chain).
func DecodeError(path string, cause error) *MavenError {
	return New(ErrCodeDecodeFailed, "could not decode: "+path, cause).WithDetail("path", path)
}

// ParseError reports a structured-format document (PDF, DOCX) whose
// container could not be parsed.
func ParseError(path string, cause error) *MavenError {
	return New(ErrCodeParseFailed, "could not parse: "+path, cause).WithDetail("path", path)
}

// StoreError reports a vector or metadata store operation failure.
// Not marked Retryable (ErrCodeStoreFailed is not a retryable code); a
// batch-level store error fails that batch but never the whole sync run.
func StoreError(op string, cause error) *MavenError {
	return New(ErrCodeStoreFailed, "store operation failed: "+op, cause).
		WithDetail("operation", op)
}

// ChannelError reports a single hybrid-search channel (filename or
// semantic) failing independently of the other.
func ChannelError(channel string, cause error) *MavenError {
	return New(ErrCodeChannelFailed, "search channel failed: "+channel, cause).
		WithDetail("channel", channel)
}

// CancelledError reports a context cancellation observed at a batch or
// step boundary.
func CancelledError(op string) *MavenError {
	return New(ErrCodeCancelled, "cancelled: "+op, nil).WithDetail("operation", op)
}

