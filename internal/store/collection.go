package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/fabienpiette/wanderlust/internal/query"
)

// Collection serves one table as documents. Leading equality and range
// conditions on plain columns are pushed into SQL; every condition is then
// evaluated in memory.
type Collection struct {
	store   *Store
	name    string
	columns []string
}

// Name returns the table name
func (c *Collection) Name() string {
	return c.name
}

// Find returns the documents matching filter
func (c *Collection) Find(ctx context.Context, filter map[string]any, opts query.FindOptions) ([]query.Document, error) {
	docs, err := c.load(ctx, filter)
	if err != nil {
		return nil, err
	}

	docs = filterDocuments(docs, filter)
	sortDocuments(docs, opts.Sort)
	return window(docs, opts.Skip, opts.Limit), nil
}

// Aggregate runs the pipeline stage by stage
func (c *Collection) Aggregate(ctx context.Context, p query.Pipeline) ([]query.Document, error) {
	var pushdown map[string]any
	if len(p) > 0 {
		if m, ok := p[0].(query.Match); ok {
			pushdown = m.Conditions
		}
	}

	docs, err := c.load(ctx, pushdown)
	if err != nil {
		return nil, err
	}

	for _, stage := range p {
		switch s := stage.(type) {
		case query.Match:
			docs = filterDocuments(docs, s.Conditions)
		case query.Sort:
			sortDocuments(docs, s.Keys)
		case query.Skip:
			docs = window(docs, s.N, 0)
		case query.Limit:
			docs = window(docs, 0, s.N)
		case query.Lookup:
			docs, err = c.lookup(ctx, docs, s)
			if err != nil {
				return nil, err
			}
		case query.Other:
			docs, err = applyOther(docs, s)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedStage, stage.Kind())
		}
	}

	return docs, nil
}

func (c *Collection) load(ctx context.Context, conditions map[string]any) ([]query.Document, error) {
	where, args := c.pushdown(conditions)

	stmt := fmt.Sprintf("SELECT %s FROM %s", strings.Join(c.columns, ", "), c.name)
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY id"

	rows, err := c.store.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.name, err)
	}
	defer rows.Close()

	docs, err := scanDocuments(rows, c.columns)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", c.name, err)
	}
	return docs, nil
}

func (c *Collection) hasColumn(name string) bool {
	for _, col := range c.columns {
		if col == name {
			return true
		}
	}
	return false
}

var sqlOperators = map[string]string{
	"$eq":  "=",
	"$gt":  ">",
	"$gte": ">=",
	"$lt":  "<",
	"$lte": "<=",
}

// pushdown translates conditions on known columns with string or numeric
// operands into SQL. Anything else is left to the in-memory matcher.
func (c *Collection) pushdown(conditions map[string]any) ([]string, []interface{}) {
	var where []string
	var args []interface{}

	for _, field := range sortedFields(conditions) {
		if !c.hasColumn(field) {
			continue
		}

		switch v := conditions[field].(type) {
		case map[string]any:
			if !isOperatorDoc(v) {
				continue
			}
			for _, op := range sortedFields(v) {
				sqlOp, ok := sqlOperators[op]
				if !ok || !sqlComparable(v[op]) {
					continue
				}
				where = append(where, fmt.Sprintf("%s %s ?", field, sqlOp))
				args = append(args, v[op])
			}
		default:
			if sqlComparable(v) {
				where = append(where, field+" = ?")
				args = append(args, v)
			}
		}
	}

	return where, args
}

func sqlComparable(v any) bool {
	if _, ok := v.(string); ok {
		return true
	}
	_, ok := toFloat(v)
	return ok
}

func sortedFields(m map[string]any) []string {
	fields := make([]string, 0, len(m))
	for k := range m {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

func scanDocuments(rows *sql.Rows, columns []string) ([]query.Document, error) {
	docs := []query.Document{}

	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		doc := make(query.Document, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				doc[col] = string(b)
			} else {
				doc[col] = values[i]
			}
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

func filterDocuments(docs []query.Document, conditions map[string]any) []query.Document {
	if len(conditions) == 0 {
		return docs
	}
	out := docs[:0:0]
	for _, doc := range docs {
		if Matches(doc, conditions) {
			out = append(out, doc)
		}
	}
	return out
}

// lookup attaches the foreign documents whose ForeignField equals each
// document's LocalField under As
func (c *Collection) lookup(ctx context.Context, docs []query.Document, l query.Lookup) ([]query.Document, error) {
	foreign, err := c.store.Collection(l.From)
	if err != nil {
		return nil, err
	}

	var keys []any
	for _, doc := range docs {
		if v, ok := lookupPath(doc, l.LocalField); ok {
			keys = append(keys, v)
		}
	}

	var related []query.Document
	if len(keys) > 0 {
		related, err = foreign.load(ctx, nil)
		if err != nil {
			return nil, err
		}
		related = filterDocuments(related, map[string]any{l.ForeignField: map[string]any{"$in": keys}})
	}

	for _, doc := range docs {
		joined := []query.Document{}
		local, ok := lookupPath(doc, l.LocalField)
		if ok {
			for _, r := range related {
				if v, ok := lookupPath(r, l.ForeignField); ok && equalValues(local, v) {
					joined = append(joined, r)
				}
			}
		}
		doc[l.As] = joined
	}

	return docs, nil
}

// applyOther runs the uninterpreted stages the store understands: $project
// and $count
func applyOther(docs []query.Document, s query.Other) ([]query.Document, error) {
	switch s.Name {
	case "$project":
		spec, ok := s.Body.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: $project expects a document", ErrUnsupportedStage)
		}
		return project(docs, spec), nil
	case "$count":
		field, ok := s.Body.(string)
		if !ok || field == "" {
			return nil, fmt.Errorf("%w: $count expects a field name", ErrUnsupportedStage)
		}
		return []query.Document{{field: len(docs)}}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedStage, s.Name)
}

func project(docs []query.Document, spec map[string]any) []query.Document {
	include := false
	for _, v := range spec {
		if truthy(v) {
			include = true
			break
		}
	}

	out := make([]query.Document, len(docs))
	for i, doc := range docs {
		projected := make(query.Document)
		if include {
			if _, ok := doc["id"]; ok {
				projected["id"] = doc["id"]
			}
			for field, v := range spec {
				if !truthy(v) {
					delete(projected, field)
					continue
				}
				if val, ok := doc[field]; ok {
					projected[field] = val
				}
			}
		} else {
			for k, v := range doc {
				projected[k] = v
			}
			for field := range spec {
				delete(projected, field)
			}
		}
		out[i] = projected
	}
	return out
}

func truthy(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	n, ok := toFloat(v)
	return ok && n != 0
}
