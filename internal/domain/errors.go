package domain

import "errors"

var (
	ErrInvalidURL     = errors.New("invalid store url")
	ErrDateParse      = errors.New("date parse failed")
	ErrRateLimited    = errors.New("rate limited by store")
	ErrUpstream       = errors.New("upstream store error")
	ErrAuthentication = errors.New("store token acquisition failed")
)
