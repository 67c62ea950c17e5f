package query

import "fmt"

// StageKind tags a pipeline stage variant
type StageKind string

// Stage kinds, named after the document operator each variant renders as
const (
	KindMatch  StageKind = "$match"
	KindSort   StageKind = "$sort"
	KindLimit  StageKind = "$limit"
	KindSkip   StageKind = "$skip"
	KindLookup StageKind = "$lookup"
	KindOther  StageKind = "other"
)

// Stage is one step of an aggregation pipeline
type Stage interface {
	Kind() StageKind
	// Canonical returns the stage's document form, e.g. {"$limit": 10}.
	Canonical() any
}

// Pipeline is an ordered list of stages
type Pipeline []Stage

// Match filters documents by field conditions
type Match struct {
	Conditions map[string]any
}

// SortKey is one field of a sort specification
type SortKey struct {
	Field     string `json:"field"`
	Direction int    `json:"direction"` // 1 ascending, -1 descending
}

// Sort orders documents by keys, in priority order
type Sort struct {
	Keys []SortKey
}

// Limit caps the number of documents
type Limit struct {
	N int
}

// Skip drops the first N documents
type Skip struct {
	N int
}

// Lookup joins documents from another collection
type Lookup struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
}

// Other carries any stage the optimizer does not interpret
type Other struct {
	Name string
	Body any
}

// Kind returns KindMatch
func (Match) Kind() StageKind { return KindMatch }

// Kind returns KindSort
func (Sort) Kind() StageKind { return KindSort }

// Kind returns KindLimit
func (Limit) Kind() StageKind { return KindLimit }

// Kind returns KindSkip
func (Skip) Kind() StageKind { return KindSkip }

// Kind returns KindLookup
func (Lookup) Kind() StageKind { return KindLookup }

// Kind returns KindOther
func (Other) Kind() StageKind { return KindOther }

// Canonical renders {"$match": conditions}
func (m Match) Canonical() any {
	return map[string]any{string(KindMatch): m.Conditions}
}

// Canonical renders {"$sort": [[field, direction], ...]}. Keys stay a list
// because their order is significant.
func (s Sort) Canonical() any {
	keys := make([]any, len(s.Keys))
	for i, k := range s.Keys {
		keys[i] = []any{k.Field, k.Direction}
	}
	return map[string]any{string(KindSort): keys}
}

// Canonical renders {"$limit": n}
func (l Limit) Canonical() any {
	return map[string]any{string(KindLimit): l.N}
}

// Canonical renders {"$skip": n}
func (s Skip) Canonical() any {
	return map[string]any{string(KindSkip): s.N}
}

// Canonical renders the join in the $lookup document shape
func (l Lookup) Canonical() any {
	return map[string]any{string(KindLookup): map[string]any{
		"from":         l.From,
		"localField":   l.LocalField,
		"foreignField": l.ForeignField,
		"as":           l.As,
	}}
}

// Canonical renders {name: body}
func (o Other) Canonical() any {
	return map[string]any{o.Name: o.Body}
}

// String renders a stage for logs
func String(s Stage) string {
	return fmt.Sprintf("%v", s.Canonical())
}

// Canonical returns the document form of every stage
func (p Pipeline) Canonical() any {
	docs := make([]any, len(p))
	for i, s := range p {
		docs[i] = s.Canonical()
	}
	return docs
}

// Count returns how many stages have the given kind
func (p Pipeline) Count(kind StageKind) int {
	n := 0
	for _, s := range p {
		if s.Kind() == kind {
			n++
		}
	}
	return n
}

// Has reports whether any stage has the given kind
func (p Pipeline) Has(kind StageKind) bool {
	return p.Count(kind) > 0
}
