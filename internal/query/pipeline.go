package query

// DefaultSafetyLimit is appended to pipelines that never limit their output
const DefaultSafetyLimit = 1000

// ReorderMatchFirst moves every Match stage to the front. The relative order
// of Match stages, and of the remaining stages, is preserved.
func ReorderMatchFirst(p Pipeline) Pipeline {
	out := make(Pipeline, 0, len(p))
	rest := make(Pipeline, 0, len(p))

	for _, stage := range p {
		if stage.Kind() == KindMatch {
			out = append(out, stage)
		} else {
			rest = append(rest, stage)
		}
	}

	return append(out, rest...)
}

// EnsureLimit appends Limit(limit) when the pipeline has at least one
// non-Match stage and none of them is a Limit.
func EnsureLimit(p Pipeline, limit int) Pipeline {
	if limit <= 0 {
		limit = DefaultSafetyLimit
	}

	nonMatch := 0
	for _, stage := range p {
		switch stage.Kind() {
		case KindLimit:
			return p
		case KindMatch:
		default:
			nonMatch++
		}
	}

	if nonMatch == 0 {
		return p
	}

	out := make(Pipeline, len(p), len(p)+1)
	copy(out, p)
	return append(out, Limit{N: limit})
}

// Optimize applies every rewrite the optimizer performs before execution
func Optimize(p Pipeline, safetyLimit int) Pipeline {
	return EnsureLimit(ReorderMatchFirst(p), safetyLimit)
}
