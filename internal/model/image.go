package model

import "time"

// Image is the metadata record linking a stored object to its container.
// The pair (Container, Key) is unique across all records.
type Image struct {
	ID        int64     `json:"id"`
	Container string    `json:"container"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}

// PresignedURL is a time-limited URL granting bearer access to one object.
// It is derived on every request and never persisted.
type PresignedURL struct {
	URI        string    `json:"uri"`
	ValidUntil time.Time `json:"valid_until"`
}
