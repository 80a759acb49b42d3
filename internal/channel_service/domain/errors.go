package domain

import "errors"

var (
	// ErrChannelNotFound is returned when a channel id or lookup key does not
	// match any persisted channel.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrDuplicateChannel is returned when a tenant already has a channel for
	// the same provider account phone number.
	ErrDuplicateChannel = errors.New("channel already exists for this provider account")
)
