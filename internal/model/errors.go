package model

import "errors"

var (
	ErrNotFound            = errors.New("file not found")
	ErrAuthorizationFailed = errors.New("authorization import failed")
	ErrInvalidHash         = errors.New("invalid hash")
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
	ErrPoolClosed          = errors.New("session pool has been closed")
	ErrCacheClosed         = errors.New("descriptor cache has been closed")
	ErrInvalidPayload      = errors.New("invalid link payload")
	ErrVerifyClosed        = errors.New("verification store has been closed")
	ErrUserNotFound        = errors.New("user not found")
	ErrUnsupportedDriver   = errors.New("unsupported database driver")
)
