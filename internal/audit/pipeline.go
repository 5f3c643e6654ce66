// Package audit checks stored documents against their collection schema and
// classifies problems as collection-level warnings or document-level errors.
package audit

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/fulmenhq/contentaudit/internal/datalayer"
	"github.com/fulmenhq/contentaudit/internal/telemetry"
	"github.com/fulmenhq/contentaudit/pkg/buildinfo"
	"github.com/fulmenhq/contentaudit/pkg/logger"
	"github.com/fulmenhq/contentaudit/pkg/schema"
)

// CleanWarning describes what clean mode does before the operator confirms.
const CleanWarning = "WARNING: clean mode rewrites stored documents in place to match the schema.\n" +
	"Fields not declared in the schema will be removed. Commit or back up your content first."

// CollectionRequest is the input to a collection auditor.
type CollectionRequest struct {
	Collection       *schema.Collection
	Database         Database
	RootPath         string
	UseDefaultValues bool
	Documents        []datalayer.DocumentRef
}

// DocumentRequest is the input to a document auditor.
type DocumentRequest struct {
	Collection       *schema.Collection
	Database         Database
	RootPath         string
	UseDefaultValues bool
	Documents        []datalayer.DocumentRef
	Verbose          bool
}

// CollectionAuditor reports collection-level warnings.
type CollectionAuditor interface {
	AuditCollection(ctx context.Context, req CollectionRequest) (bool, error)
}

// DocumentAuditor reports document-level errors, repairing when asked.
type DocumentAuditor interface {
	AuditDocuments(ctx context.Context, req DocumentRequest) (bool, error)
}

// Gate asks the operator to confirm a destructive run.
type Gate interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

// Telemetry receives one usage event per run.
type Telemetry interface {
	SubmitRecord(ctx context.Context, event telemetry.Event) error
}

// Pipeline sequences confirmation, per-collection auditing and aggregation.
type Pipeline struct {
	Collections CollectionAuditor
	Documents   DocumentAuditor
	Gate        Gate
	Telemetry   Telemetry
}

// NewPipeline wires the standard auditors.
func NewPipeline(gate Gate, tel Telemetry) *Pipeline {
	return &Pipeline{
		Collections: &SchemaCollectionAuditor{},
		Documents:   &SchemaDocumentAuditor{},
		Gate:        gate,
		Telemetry:   tel,
	}
}

// Run audits every collection in schema order. It returns ErrDeclined, with
// no run state, when clean mode is refused. Only failures outside the
// per-collection loop are returned as errors.
func (p *Pipeline) Run(ctx context.Context, rc *RunContext, opts Options) (*RunContext, error) {
	if rc == nil || rc.Database == nil {
		return nil, errors.New("audit run requires a database")
	}
	p.submitTelemetry(ctx, rc, opts)

	if opts.Clean {
		if p.Gate == nil {
			return nil, errors.New("clean mode requires a confirmation gate")
		}
		ok, err := p.Gate.Confirm(ctx, CleanWarning)
		if err != nil {
			return nil, errors.Wrap(err, "confirm clean mode")
		}
		if !ok {
			return nil, ErrDeclined
		}
	}

	if opts.UseDefaultValues && !opts.Clean {
		logger.Warn("--use-default-values has no effect without --clean")
	}
	useDefaults := opts.UseDefaultValues && opts.Clean

	s, err := rc.Database.GetSchema(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load schema")
	}

	for _, c := range s.GetCollections() {
		out := p.auditCollection(ctx, rc, c, useDefaults)
		if out.Fault != nil {
			logger.Error("Collection audit aborted",
				logger.String("collection", c.Name),
				logger.String("stage", string(out.Fault.Stage)),
				logger.Err(out.Fault.Err))
		}
		rc.record(out)
	}
	return rc, nil
}

func (p *Pipeline) auditCollection(ctx context.Context, rc *RunContext, c *schema.Collection, useDefaults bool) (out CollectionOutcome) {
	out = CollectionOutcome{Collection: c.Name, Label: c.Label, Path: c.Path}
	stage := StageQuery
	defer func() {
		if r := recover(); r != nil {
			out.Warning, out.Error = false, false
			out.Fault = &Fault{Collection: c.Name, Stage: stage, Err: errors.Newf("panic: %v", r)}
		}
	}()
	fail := func(err error) CollectionOutcome {
		out.Fault = &Fault{Collection: c.Name, Stage: stage, Err: err}
		return out
	}

	logger.Info(fmt.Sprintf("Auditing collection %s", c.Name))
	conn, err := datalayer.Query(ctx, rc.Database, datalayer.QueryArgs{Collection: c.Name, First: -1}, datalayer.RefOnly)
	if err != nil {
		return fail(err)
	}
	docs := make([]datalayer.DocumentRef, 0, len(conn.Edges))
	for _, e := range conn.Edges {
		docs = append(docs, e.Node)
	}
	out.Documents = len(docs)

	stage = StageCollection
	warning, err := p.Collections.AuditCollection(ctx, CollectionRequest{
		Collection:       c,
		Database:         rc.Database,
		RootPath:         rc.RootPath,
		UseDefaultValues: useDefaults,
		Documents:        docs,
	})
	if err != nil {
		return fail(err)
	}

	stage = StageDocuments
	hasErrors, err := p.Documents.AuditDocuments(ctx, DocumentRequest{
		Collection:       c,
		Database:         rc.Database,
		RootPath:         rc.RootPath,
		UseDefaultValues: useDefaults,
		Documents:        docs,
		Verbose:          rc.Verbose,
	})
	if err != nil {
		return fail(err)
	}

	out.Warning, out.Error = warning, hasErrors
	return out
}

func (p *Pipeline) submitTelemetry(ctx context.Context, rc *RunContext, opts Options) {
	if opts.NoTelemetry || p.Telemetry == nil {
		return
	}
	err := p.Telemetry.SubmitRecord(ctx, telemetry.Event{
		Name:        telemetry.AuditInvokeEvent,
		Clean:       opts.Clean,
		UseDefaults: opts.UseDefaultValues,
		RunID:       rc.ID.String(),
		Version:     buildinfo.Version(),
	})
	if err != nil {
		logger.Debug("Telemetry submission failed", logger.Err(err))
	}
}
