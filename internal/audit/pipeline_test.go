package audit

import (
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/fulmenhq/contentaudit/internal/datalayer"
	"github.com/fulmenhq/contentaudit/internal/telemetry"
	"github.com/fulmenhq/contentaudit/pkg/schema"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pipelineSchemaYAML = `
collections:
  - name: posts
    path: content/posts
    fields:
      - name: title
        type: string
  - name: pages
    path: content/pages
    fields:
      - name: title
        type: string
  - name: authors
    path: content/authors
    format: json
    fields:
      - name: name
        type: string
`

// stubDB serves a fixed schema and path listing.
type stubDB struct {
	schema    *schema.Schema
	schemaErr error
	paths     map[string][]string
	listErr   map[string]error
}

func newStubDB(t *testing.T) *stubDB {
	t.Helper()
	s, err := schema.Parse([]byte(pipelineSchemaYAML), "yaml")
	require.NoError(t, err)
	return &stubDB{
		schema: s,
		paths: map[string][]string{
			"posts":   {"content/posts/a.md", "content/posts/b.md"},
			"pages":   {"content/pages/about.md"},
			"authors": {},
		},
		listErr: map[string]error{},
	}
}

func (d *stubDB) GetSchema(context.Context) (*schema.Schema, error) {
	return d.schema, d.schemaErr
}

func (d *stubDB) ListPaths(_ context.Context, args datalayer.QueryArgs) ([]string, error) {
	if err := d.listErr[args.Collection]; err != nil {
		return nil, err
	}
	return d.paths[args.Collection], nil
}

func (d *stubDB) Get(context.Context, string) (*datalayer.Document, error) {
	return nil, datalayer.ErrNotFound
}

func (d *stubDB) Put(context.Context, *schema.Collection, string, map[string]interface{}) error {
	return nil
}

func (d *stubDB) Exists(context.Context, string) (bool, error) {
	return true, nil
}

type verdict struct {
	result bool
	err    error
	panics bool
}

// recorder captures the order auditors were invoked in.
type recorder struct {
	calls []string
}

type stubCollectionAuditor struct {
	rec      *recorder
	verdicts map[string]verdict
	requests []CollectionRequest
}

func (a *stubCollectionAuditor) AuditCollection(_ context.Context, req CollectionRequest) (bool, error) {
	a.rec.calls = append(a.rec.calls, req.Collection.Name+":collection")
	a.requests = append(a.requests, req)
	v := a.verdicts[req.Collection.Name]
	if v.panics {
		panic("collection auditor exploded")
	}
	return v.result, v.err
}

type stubDocumentAuditor struct {
	rec      *recorder
	verdicts map[string]verdict
	requests []DocumentRequest
}

func (a *stubDocumentAuditor) AuditDocuments(_ context.Context, req DocumentRequest) (bool, error) {
	a.rec.calls = append(a.rec.calls, req.Collection.Name+":documents")
	a.requests = append(a.requests, req)
	v := a.verdicts[req.Collection.Name]
	if v.panics {
		panic("document auditor exploded")
	}
	return v.result, v.err
}

type stubGate struct {
	answer  bool
	err     error
	asked   int
	message string
}

func (g *stubGate) Confirm(_ context.Context, message string) (bool, error) {
	g.asked++
	g.message = message
	return g.answer, g.err
}

type stubTelemetry struct {
	events []telemetry.Event
	err    error
}

func (s *stubTelemetry) SubmitRecord(_ context.Context, e telemetry.Event) error {
	s.events = append(s.events, e)
	return s.err
}

type harness struct {
	db   *stubDB
	coll *stubCollectionAuditor
	docs *stubDocumentAuditor
	gate *stubGate
	tel  *stubTelemetry
	rec  *recorder
	pipe *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rec := &recorder{}
	h := &harness{
		db:   newStubDB(t),
		coll: &stubCollectionAuditor{rec: rec, verdicts: map[string]verdict{}},
		docs: &stubDocumentAuditor{rec: rec, verdicts: map[string]verdict{}},
		gate: &stubGate{answer: true},
		tel:  &stubTelemetry{},
		rec:  rec,
	}
	h.pipe = &Pipeline{Collections: h.coll, Documents: h.docs, Gate: h.gate, Telemetry: h.tel}
	return h
}

func (h *harness) run(t *testing.T, opts Options) (*RunContext, error) {
	t.Helper()
	return h.pipe.Run(context.Background(), NewRunContext(h.db, "/site", opts.Verbose), opts)
}

func TestReportPrecedence(t *testing.T) {
	tests := []struct {
		warning bool
		error   bool
		want    Outcome
	}{
		{false, false, Passed},
		{true, false, PassedWithWarnings},
		{false, true, Failed},
		{true, true, Failed},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("warning=%v,error=%v", tt.warning, tt.error), func(t *testing.T) {
			rc := &RunContext{Warning: tt.warning, Error: tt.error}
			assert.Equal(t, tt.want, Report(rc))
			// Pure: asking twice gives the same answer and leaves rc untouched.
			assert.Equal(t, tt.want, Report(rc))
			assert.Equal(t, tt.warning, rc.Warning)
			assert.Equal(t, tt.error, rc.Error)
		})
	}
}

func TestRunSeverityAggregation(t *testing.T) {
	tests := []struct {
		name        string
		collections map[string]verdict
		documents   map[string]verdict
		want        Outcome
	}{
		{
			name: "all clean",
			want: Passed,
		},
		{
			name:        "document error wins over warnings",
			collections: map[string]verdict{"pages": {result: true}},
			documents:   map[string]verdict{"authors": {result: true}},
			want:        Failed,
		},
		{
			name:        "warnings only",
			collections: map[string]verdict{"posts": {result: true}},
			want:        PassedWithWarnings,
		},
		{
			name:      "posts error, pages clean",
			documents: map[string]verdict{"posts": {result: true}, "pages": {result: false}},
			want:      Failed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.collections != nil {
				h.coll.verdicts = tt.collections
			}
			if tt.documents != nil {
				h.docs.verdicts = tt.documents
			}
			rc, err := h.run(t, Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, Report(rc))
			assert.Empty(t, rc.Faults)
			assert.Len(t, rc.Outcomes, 3)
		})
	}
}

func TestRunOrdering(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"posts:collection", "posts:documents",
		"pages:collection", "pages:documents",
		"authors:collection", "authors:documents",
	}, h.rec.calls)

	require.Len(t, h.coll.requests, 3)
	assert.Equal(t, []datalayer.DocumentRef{{Path: "content/posts/a.md"}, {Path: "content/posts/b.md"}}, h.coll.requests[0].Documents)
	assert.Equal(t, "/site", h.coll.requests[0].RootPath)
	assert.Equal(t, h.coll.requests[0].Documents, h.docs.requests[0].Documents)
}

func TestRunCleanDeclined(t *testing.T) {
	h := newHarness(t)
	h.gate.answer = false

	rc, err := h.run(t, Options{Clean: true})
	assert.True(t, errors.Is(err, ErrDeclined))
	assert.Nil(t, rc)
	assert.Equal(t, 1, h.gate.asked)
	assert.Equal(t, CleanWarning, h.gate.message)
	assert.Empty(t, h.rec.calls)
}

func TestRunCleanConfirmed(t *testing.T) {
	h := newHarness(t)
	rc, err := h.run(t, Options{Clean: true, UseDefaultValues: true})
	require.NoError(t, err)
	assert.Equal(t, Passed, Report(rc))
	assert.Equal(t, 1, h.gate.asked)
	for _, req := range h.docs.requests {
		assert.True(t, req.UseDefaultValues)
	}
}

func TestRunCleanGateFailure(t *testing.T) {
	h := newHarness(t)
	h.gate.err = errors.New("terminal closed")
	_, err := h.run(t, Options{Clean: true})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDeclined))
	assert.Empty(t, h.rec.calls)

	h = newHarness(t)
	h.pipe.Gate = nil
	_, err = h.run(t, Options{Clean: true})
	assert.Error(t, err)
	assert.Empty(t, h.rec.calls)
}

func TestRunNoGateWithoutClean(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, Options{})
	require.NoError(t, err)
	assert.Zero(t, h.gate.asked)
}

func TestRunUseDefaultsWithoutCleanIsAdvisory(t *testing.T) {
	logs := captureLogs(t)
	h := newHarness(t)

	rc, err := h.run(t, Options{UseDefaultValues: true})
	require.NoError(t, err)
	assert.Equal(t, Passed, Report(rc))
	assert.Contains(t, logs.String(), "--use-default-values has no effect without --clean")

	require.Len(t, h.docs.requests, 3)
	for _, req := range h.docs.requests {
		assert.False(t, req.UseDefaultValues)
	}
	for _, req := range h.coll.requests {
		assert.False(t, req.UseDefaultValues)
	}
}

func TestRunIsolatesFaults(t *testing.T) {
	errorsEqual := cmp.Comparer(func(a, b error) bool { return a.Error() == b.Error() })

	tests := []struct {
		name       string
		setup      func(h *harness)
		wantFaults []Fault
		want       Outcome
	}{
		{
			name: "listing fails",
			setup: func(h *harness) {
				h.db.listErr["posts"] = errors.New("index locked")
				h.docs.verdicts["pages"] = verdict{result: true}
			},
			wantFaults: []Fault{{Collection: "posts", Stage: StageQuery, Err: errors.New("index locked")}},
			want:       Failed,
		},
		{
			name: "collection auditor returns error",
			setup: func(h *harness) {
				h.coll.verdicts["posts"] = verdict{result: true, err: errors.New("disk gone")}
				h.coll.verdicts["authors"] = verdict{result: true}
			},
			wantFaults: []Fault{{Collection: "posts", Stage: StageCollection, Err: errors.New("disk gone")}},
			want:       PassedWithWarnings,
		},
		{
			name: "document auditor panics",
			setup: func(h *harness) {
				h.docs.verdicts["pages"] = verdict{panics: true}
			},
			wantFaults: []Fault{{Collection: "pages", Stage: StageDocuments, Err: errors.New("panic: document auditor exploded")}},
			want:       Passed,
		},
		{
			name: "faulted collection verdicts are discarded",
			setup: func(h *harness) {
				h.coll.verdicts["posts"] = verdict{result: true}
				h.docs.verdicts["posts"] = verdict{result: true, err: errors.New("half way")}
			},
			wantFaults: []Fault{{Collection: "posts", Stage: StageDocuments, Err: errors.New("half way")}},
			want:       Passed,
		},
		{
			name: "every collection faults",
			setup: func(h *harness) {
				h.coll.verdicts["posts"] = verdict{panics: true}
				h.coll.verdicts["pages"] = verdict{panics: true}
				h.coll.verdicts["authors"] = verdict{panics: true}
			},
			wantFaults: []Fault{
				{Collection: "posts", Stage: StageCollection, Err: errors.New("panic: collection auditor exploded")},
				{Collection: "pages", Stage: StageCollection, Err: errors.New("panic: collection auditor exploded")},
				{Collection: "authors", Stage: StageCollection, Err: errors.New("panic: collection auditor exploded")},
			},
			want: Passed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			rc, err := h.run(t, Options{})
			require.NoError(t, err)
			if diff := cmp.Diff(tt.wantFaults, rc.Faults, errorsEqual); diff != "" {
				t.Errorf("faults mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.want, Report(rc))
			// Later collections still ran.
			assert.Len(t, rc.Outcomes, 3)
			assert.Equal(t, "authors", rc.Outcomes[2].Collection)
		})
	}
}

func TestRunSchemaFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.db.schemaErr = errors.New("schema unreadable")

	rc, err := h.run(t, Options{})
	require.Error(t, err)
	assert.Nil(t, rc)
	assert.Empty(t, h.rec.calls)
}

func TestRunRequiresDatabase(t *testing.T) {
	_, err := (&Pipeline{}).Run(context.Background(), &RunContext{}, Options{})
	assert.Error(t, err)
	_, err = (&Pipeline{}).Run(context.Background(), nil, Options{})
	assert.Error(t, err)
}

func TestRunIdempotentWithoutClean(t *testing.T) {
	h := newHarness(t)
	h.coll.verdicts["pages"] = verdict{result: true}

	first, err := h.run(t, Options{})
	require.NoError(t, err)
	second, err := h.run(t, Options{})
	require.NoError(t, err)

	assert.Equal(t, Report(first), Report(second))
	assert.Equal(t, first.Outcomes, second.Outcomes)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestRunTelemetry(t *testing.T) {
	h := newHarness(t)
	rc, err := h.run(t, Options{Clean: true})
	require.NoError(t, err)
	require.Len(t, h.tel.events, 1)
	assert.Equal(t, telemetry.AuditInvokeEvent, h.tel.events[0].Name)
	assert.True(t, h.tel.events[0].Clean)
	assert.Equal(t, rc.ID.String(), h.tel.events[0].RunID)

	h = newHarness(t)
	_, err = h.run(t, Options{NoTelemetry: true})
	require.NoError(t, err)
	assert.Empty(t, h.tel.events)

	// Submission failures never change the run.
	h = newHarness(t)
	h.tel.err = errors.New("collector down")
	rc, err = h.run(t, Options{})
	require.NoError(t, err)
	assert.Equal(t, Passed, Report(rc))

	// Telemetry is sent even when the operator then declines.
	h = newHarness(t)
	h.gate.answer = false
	_, err = h.run(t, Options{Clean: true})
	assert.True(t, errors.Is(err, ErrDeclined))
	assert.Len(t, h.tel.events, 1)
}
