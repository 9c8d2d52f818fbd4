// Package journal records the outcome of every command wayside runs.
package journal

import (
	"context"
	"time"
)

// Outcome classifies how a command ended.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeBusy      Outcome = "busy"
	OutcomeRejected  Outcome = "rejected"
)

// Entry is one journal row.
type Entry struct {
	ID           int64     `json:"id" yaml:"id"`
	OccurredAt   time.Time `json:"occurred_at" yaml:"occurred_at"`
	Command      string    `json:"command" yaml:"command"`
	WaystationID string    `json:"waystation_id,omitempty" yaml:"waystation_id,omitempty"`
	Outcome      Outcome   `json:"outcome" yaml:"outcome"`
	Detail       string    `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Recorder accepts entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Store is a Recorder that can also list what it recorded.
type Store interface {
	Recorder
	// List returns up to limit entries, newest first.
	List(ctx context.Context, limit int) ([]Entry, error)
	Close(ctx context.Context) error
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error        { return nil }
func (Nop) List(context.Context, int) ([]Entry, error) { return nil, nil }
func (Nop) Close(context.Context) error                { return nil }

var _ Store = Nop{}
