// Package audit keeps a record of promotions and health snapshots.
package audit

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
)

const (
	KindDeployment = "deployment"
	KindHealth     = "health"
)

// Event is one audit record. Data is whatever the producer records;
// it must marshal to JSON.
type Event struct {
	Kind string      `json:"kind"`
	Time time.Time   `json:"time"`
	Data interface{} `json:"data"`
}

type Sink interface {
	Record(ctx context.Context, e Event) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

// Log writes events to a logger, one line each.
type Log struct {
	Logger log.Logger
}

func (l Log) Record(ctx context.Context, e Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return errors.Wrap(err, "encoding audit event")
	}
	return l.Logger.Log("audit", e.Kind, "time", e.Time.UTC().Format(time.RFC3339), "data", string(data))
}

// File appends events to a file as JSON lines.
type File struct {
	mu   sync.Mutex
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Record(ctx context.Context, e Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encoding audit event")
	}
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()
	file, err := os.OpenFile(f.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return errors.Wrap(err, "opening audit log")
	}
	defer file.Close()
	_, err = file.Write(line)
	return errors.Wrap(err, "writing audit log")
}
