package run

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/opst/savethat/pkg/domain"
	"github.com/opst/savethat/pkg/storage"
)

var ErrRunNotFound = errors.New("run not found")

// Run is a summary of a run found in the storage.
type Run struct {
	Key    string           `json:"key"`
	Node   string           `json:"node"`
	Status domain.RunStatus `json:"status"`

	// creation time taken from the key. Zero when the key does not have a timestamp.
	Time time.Time `json:"time"`

	// files in the run directory.
	Files []File `json:"files"`
}

// File is a file in a run directory.
type File struct {
	// slash separated path relative to the run directory.
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modtime"`
}

// Detail is Run with its records.
type Detail struct {
	Run

	// content of domain.ArgsFile.
	Args map[string]any `json:"args"`

	// content of domain.NodeFile, if any.
	NodeInfo map[string]any `json:"node_info,omitempty"`

	// content of domain.ResultFile, if completed.
	Result json.RawMessage `json:"result,omitempty"`
}

// Query selects runs.
type Query struct {
	// (partial) key prefix, like "FitOLS_2024-03" or "sweep/".
	Prefix string

	// scan the remote instead of the local directory.
	//
	// When the remote is not configured, the local directory is scanned.
	Remote bool

	Status domain.StatusFilter

	// inclusive bounds of the creation time. nil means unbounded.
	Before *time.Time
	After  *time.Time
}

// Storage is what the run index reads.
//
// *storage.Storage satisfies this.
type Storage interface {
	HasRemote() bool
	LocalList(prefix string) ([]storage.Entry, error)
	RemoteList(ctx context.Context, prefix string) ([]storage.Entry, error)
	Open(ctx context.Context, key string) (*os.File, error)
}

type Interface interface {
	// Find returns runs matching q, sorted by key.
	Find(ctx context.Context, q Query) ([]Run, error)

	// Get returns the run of key with its records.
	//
	// When remote is true and the remote is configured, the run is looked up in the remote,
	// and missing records are downloaded.
	//
	// If there is no such run, it returns ErrRunNotFound.
	Get(ctx context.Context, key string, remote bool) (Detail, error)
}

type impl struct {
	st Storage
}

func New(st Storage) Interface {
	return &impl{st: st}
}
