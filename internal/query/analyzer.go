package query

import "fmt"

// MaxLookupsBeforeDenormalize is the lookup count above which denormalization is advised
const MaxLookupsBeforeDenormalize = 2

// AnalyzePipeline returns advisory notes for a slow aggregation. It looks at
// the pipeline as the caller wrote it.
func AnalyzePipeline(p Pipeline) []string {
	var notes []string

	if len(p) > 0 && p[0].Kind() != KindMatch {
		notes = append(notes, "Add a $match stage at the beginning of the pipeline to filter documents early")
	}

	if p.Has(KindSort) && !p.Has(KindLimit) {
		notes = append(notes, "Add a $limit stage after $sort to reduce memory usage")
	}

	if lookups := p.Count(KindLookup); lookups > MaxLookupsBeforeDenormalize {
		notes = append(notes, fmt.Sprintf("Pipeline uses %d $lookup stages; consider denormalizing the joined data", lookups))
	}

	return notes
}

// AnalyzeFind returns advisory notes for a slow find
func AnalyzeFind(filter map[string]any, opts FindOptions) []string {
	var notes []string

	if len(filter) == 0 {
		notes = append(notes, "Add filter conditions to avoid scanning the entire collection")
	}

	if len(opts.Sort) > 0 && opts.Limit <= 0 {
		notes = append(notes, "Add a limit when sorting to reduce memory usage")
	}

	return notes
}
