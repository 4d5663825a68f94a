// Package repo holds the errors shared by every content store implementation.
package repo

import "errors"

var (
	ErrItemNotFound    = errors.New("content item not found")
	ErrItemExists      = errors.New("content item already exists")
	ErrVersionConflict = errors.New("content item version conflict")
)
