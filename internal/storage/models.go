package storage

import (
	"errors"
	"net/http"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// CacheEntry is one stored response inside a cache generation.
type CacheEntry struct {
	Generation string
	Key        string // request URL
	Status     int
	Header     http.Header
	Body       []byte
	StoredAt   time.Time
}
