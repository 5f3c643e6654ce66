package audit

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/fulmenhq/contentaudit/internal/datalayer"
	"github.com/fulmenhq/contentaudit/pkg/logger"
	"github.com/fulmenhq/contentaudit/pkg/schema"
)

// systemKeys are store-managed and never part of a submitted form.
var systemKeys = []string{"_collection", "_sys", "id", "__typename"}

const templateKey = "_template"

// SchemaDocumentAuditor validates each document against its collection
// schema and resubmits valid documents through the normal write path.
type SchemaDocumentAuditor struct{}

// AuditDocuments returns true if any document failed to load or validate.
// One bad document never stops the rest from being checked.
func (a *SchemaDocumentAuditor) AuditDocuments(ctx context.Context, req DocumentRequest) (bool, error) {
	c := req.Collection
	hasErrors := false

	for _, d := range req.Documents {
		location := filepath.Join(req.RootPath, filepath.FromSlash(d.Path))
		if req.Verbose {
			logger.Info(fmt.Sprintf("Checking document: %s", location))
		}

		doc, err := req.Database.Get(ctx, d.Path)
		if err != nil {
			logger.Error(fmt.Sprintf("Unable to read %s", location), logger.Err(err))
			hasErrors = true
			continue
		}
		fields, err := c.FieldsFor(doc.Template)
		if err != nil {
			logger.Error(fmt.Sprintf("%s: %v", location, err))
			hasErrors = true
			continue
		}

		values := doc.Values
		if req.UseDefaultValues {
			values = schema.ApplyDefaults(values, schema.TopLevelDefaults(fields))
		}
		values = formValues(values, fields, c.HasTemplates())

		if err := c.Compile(doc.Template); err != nil {
			return hasErrors, errors.Wrapf(err, "compile schema for %s", d.Path)
		}
		res, err := c.Validate(doc.Template, values)
		if err != nil {
			logger.Error(fmt.Sprintf("Unable to validate %s", location), logger.Err(err))
			hasErrors = true
			continue
		}
		if !res.Valid {
			logger.Error(fmt.Sprintf("Error in document %s", location))
			for _, ve := range res.Errors {
				logger.Error(fmt.Sprintf("  %s: %s", ve.Path, ve.Message), logger.String("document", d.Path))
			}
			hasErrors = true
			continue
		}

		if err := req.Database.Put(ctx, c, doc.RelativePath, values); err != nil {
			logger.Error(fmt.Sprintf("Unable to write %s", location), logger.Err(err))
			hasErrors = true
			continue
		}
		if req.Verbose {
			logger.Debug(fmt.Sprintf("Document %s conforms", location))
		}
	}
	return hasErrors, nil
}

// formValues keeps only what a content form would submit: declared fields,
// an unclaimed markdown body, and _template for templated collections.
// Store-managed keys are always dropped.
func formValues(values map[string]interface{}, fields []*schema.Field, keepTemplate bool) map[string]interface{} {
	declared := make(map[string]bool, len(fields)+2)
	for _, f := range fields {
		declared[f.Name] = true
	}
	declared[datalayer.BodyKey] = true
	if keepTemplate {
		declared[templateKey] = true
	}
	for _, k := range systemKeys {
		delete(declared, k)
	}

	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		if declared[k] {
			out[k] = v
		}
	}
	return out
}
