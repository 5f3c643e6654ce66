package audit

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/fulmenhq/contentaudit/pkg/logger"
)

// SchemaCollectionAuditor flags structural drift between a collection's
// declaration and the documents stored under it.
type SchemaCollectionAuditor struct{}

// AuditCollection returns true when any document has the wrong extension,
// has vanished since indexing, or names a template the collection lacks.
// Unreadable documents are left to the document auditor.
func (a *SchemaCollectionAuditor) AuditCollection(ctx context.Context, req CollectionRequest) (bool, error) {
	c := req.Collection
	warning := false

	for _, d := range req.Documents {
		location := filepath.Join(req.RootPath, filepath.FromSlash(d.Path))

		if ext := path.Ext(d.Path); !c.Format.Accepts(ext) {
			logger.Warn(fmt.Sprintf("%s has extension %q but collection %s is declared as %s", location, ext, c.Name, c.Format),
				logger.String("collection", c.Name))
			warning = true
		}

		exists, err := req.Database.Exists(ctx, d.Path)
		if err != nil {
			return false, errors.Wrapf(err, "check %s", d.Path)
		}
		if !exists {
			logger.Warn(fmt.Sprintf("%s is indexed but missing; run `contentaudit index sync`", location),
				logger.String("collection", c.Name))
			warning = true
			continue
		}

		if !c.HasTemplates() {
			continue
		}
		doc, err := req.Database.Get(ctx, d.Path)
		if err != nil {
			continue
		}
		if _, err := c.FieldsFor(doc.Template); err != nil {
			logger.Warn(fmt.Sprintf("%s: template mismatch: %v", location, err),
				logger.String("collection", c.Name))
			warning = true
		}
	}
	return warning, nil
}
