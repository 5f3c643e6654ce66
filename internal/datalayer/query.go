package datalayer

import (
	"context"
	"encoding/base64"
)

// Filter operators understood by ListPaths.
const (
	FilterEq     = "eq"
	FilterPrefix = "prefix"
)

// Filter narrows a query on an indexed column ("path" or "extension").
type Filter struct {
	Field string
	Op    string
	Value string
}

// QueryArgs selects documents from one collection.
type QueryArgs struct {
	Collection  string
	First       int
	FilterChain []Filter
}

// PathLister resolves query arguments into document paths.
type PathLister interface {
	ListPaths(ctx context.Context, args QueryArgs) ([]string, error)
}

// Edge pairs a node with its opaque pagination cursor.
type Edge[T any] struct {
	Cursor string
	Node   T
}

// Connection is a page of query results.
type Connection[T any] struct {
	TotalCount int
	Edges      []Edge[T]
}

// DocumentRef identifies a document without loading it.
type DocumentRef struct {
	Path string
}

// Hydrator turns a document path into a result node.
type Hydrator[T any] func(ctx context.Context, path string) (T, error)

// RefOnly is a Hydrator that returns just the path.
func RefOnly(_ context.Context, path string) (DocumentRef, error) {
	return DocumentRef{Path: path}, nil
}

// Query lists matching paths and hydrates each into a node.
func Query[T any](ctx context.Context, lister PathLister, args QueryArgs, hydrate Hydrator[T]) (*Connection[T], error) {
	paths, err := lister.ListPaths(ctx, args)
	if err != nil {
		return nil, err
	}
	conn := &Connection[T]{Edges: make([]Edge[T], 0, len(paths))}
	for _, p := range paths {
		node, err := hydrate(ctx, p)
		if err != nil {
			return nil, err
		}
		conn.Edges = append(conn.Edges, Edge[T]{
			Cursor: base64.StdEncoding.EncodeToString([]byte(p)),
			Node:   node,
		})
	}
	conn.TotalCount = len(conn.Edges)
	return conn, nil
}
