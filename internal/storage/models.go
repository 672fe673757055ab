package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Record is one row of the universities table.
type Record struct {
	University  string `json:"university"`
	Program     string `json:"program"`
	Tuition     int64  `json:"tuition"`
	Location    string `json:"location"`
	VisaService string `json:"visa_service"`
}

// Table is the result of a read-only query.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Turn is one entry of the conversation log.
type Turn struct {
	ID        string
	Role      string // "user" or "assistant"
	Content   string
	CreatedAt time.Time
}

// QueryCount is a user query and how often it was asked.
type QueryCount struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

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
