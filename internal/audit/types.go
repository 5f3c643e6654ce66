package audit

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/fulmenhq/contentaudit/internal/datalayer"
	"github.com/fulmenhq/contentaudit/pkg/schema"
	"github.com/google/uuid"
)

// ErrDeclined is returned when the operator refuses clean mode. It is a
// neutral outcome, not a failure.
var ErrDeclined = errors.New("audit declined by operator")

// Options are the operator's switches for one run.
type Options struct {
	Clean            bool
	UseDefaultValues bool
	NoTelemetry      bool
	Verbose          bool
}

// Database is the slice of the document store the auditors need.
type Database interface {
	datalayer.PathLister
	GetSchema(ctx context.Context) (*schema.Schema, error)
	Get(ctx context.Context, path string) (*datalayer.Document, error)
	Put(ctx context.Context, coll *schema.Collection, relativePath string, values map[string]interface{}) error
	Exists(ctx context.Context, path string) (bool, error)
}

// Stage names where a collection fault happened.
type Stage string

const (
	StageQuery      Stage = "query"
	StageCollection Stage = "collection"
	StageDocuments  Stage = "documents"
)

// Fault records a collection whose processing could not produce a verdict.
type Fault struct {
	Collection string
	Stage      Stage
	Err        error
}

func (f Fault) Error() string {
	return fmt.Sprintf("collection %s (%s): %v", f.Collection, f.Stage, f.Err)
}

// CollectionOutcome is the per-collection verdict. It exists only for the
// duration of a run.
type CollectionOutcome struct {
	Collection string
	Label      string
	Path       string
	Documents  int
	Warning    bool
	Error      bool
	Fault      *Fault
}

// RunContext carries one invocation's inputs and accumulated severity.
type RunContext struct {
	ID       uuid.UUID
	Database Database
	RootPath string
	Verbose  bool

	Warning  bool
	Error    bool
	Faults   []Fault
	Outcomes []CollectionOutcome
}

// NewRunContext starts a run with a fresh identifier.
func NewRunContext(db Database, rootPath string, verbose bool) *RunContext {
	return &RunContext{
		ID:       uuid.New(),
		Database: db,
		RootPath: rootPath,
		Verbose:  verbose,
	}
}

// record folds a collection outcome into the run. Faulted collections add
// neither warning nor error.
func (rc *RunContext) record(out CollectionOutcome) {
	rc.Outcomes = append(rc.Outcomes, out)
	if out.Fault != nil {
		rc.Faults = append(rc.Faults, *out.Fault)
		return
	}
	rc.Warning = rc.Warning || out.Warning
	rc.Error = rc.Error || out.Error
}
