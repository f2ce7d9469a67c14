package drpm

import "errors"

var (
	ErrArgument = errors.New("drpm: invalid argument")
	ErrFormat   = errors.New("drpm: malformed delta")
	ErrMemory   = errors.New("drpm: allocation limit exceeded")
	ErrOverflow = errors.New("drpm: length out of range")
)
