// Package agents wraps each LLM-backed transform of the platform: the
// review stages (peer review, red team, meta-review, revision) and the
// writing stages (ideation, novelty, methodology, composition), plus the
// rail and targeting evaluators. Every adapter returns a tagged Result:
// when the completion cannot be parsed against the declared schema the
// adapter supplies a default value and marks the result as a fallback
// instead of failing, so callers always see which case they got.
package agents

// PaperContext is the slice of a paper every review-side adapter reads.
type PaperContext struct {
	Title    string
	Abstract string
	FullText string
}

// Result carries a structured adapter output together with the raw
// completion. Fallback is true when Value is a schema default rather
// than a parsed response.
type Result[T any] struct {
	Value    T
	Fallback bool
	Raw      string
}

func parsed[T any](v T, raw string) Result[T] {
	return Result[T]{Value: v, Raw: raw}
}

func fallback[T any](v T, raw string) Result[T] {
	return Result[T]{Value: v, Fallback: true, Raw: raw}
}

// truncate bounds text slices fed into prompt context.
func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
