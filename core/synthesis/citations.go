package synthesis

import (
	"strconv"
	"strings"
)

// maxMarkerDigits bounds how many digits a citation marker may carry.
// Anything longer is passed through as plain text.
const maxMarkerDigits = 4

// citationRewriter renumbers inline citation markers incrementally so that
// markers appear as [1], [2], ... in order of first use and always point at
// a selected context chunk. Markers referencing a context position outside
// [1, limit] are dropped. The rewriter is stream-safe: partial markers at
// the end of a token are buffered until the next write.
type citationRewriter struct {
	limit    int
	order    []int
	assigned map[int]int
	pending  strings.Builder
}

func newCitationRewriter(limit int) *citationRewriter {
	return &citationRewriter{
		limit:    limit,
		assigned: make(map[int]int),
	}
}

// Write consumes the next piece of generated text and returns the rewritten
// text that is safe to emit.
func (r *citationRewriter) Write(text string) string {
	var out strings.Builder
	for _, char := range text {
		if r.pending.Len() == 0 {
			if char == '[' {
				r.pending.WriteRune(char)
				continue
			}
			out.WriteRune(char)
			continue
		}

		if char >= '0' && char <= '9' {
			if r.pending.Len() > maxMarkerDigits {
				out.WriteString(r.pending.String())
				r.pending.Reset()
				out.WriteRune(char)
				continue
			}
			r.pending.WriteRune(char)
			continue
		}

		if char == ']' && r.pending.Len() > 1 {
			out.WriteString(r.rewriteMarker(r.pending.String()[1:]))
			r.pending.Reset()
			continue
		}

		// Not a marker after all
		out.WriteString(r.pending.String())
		r.pending.Reset()
		if char == '[' {
			r.pending.WriteRune(char)
			continue
		}
		out.WriteRune(char)
	}
	return out.String()
}

// Flush returns whatever partial marker is still buffered, unmodified.
// Call once after the final Write.
func (r *citationRewriter) Flush() string {
	tail := r.pending.String()
	r.pending.Reset()
	return tail
}

// Order returns the 0-based context indices of the cited chunks in first-use
// order. The marker [k] in the rewritten text refers to Order()[k-1].
func (r *citationRewriter) Order() []int {
	return r.order
}

func (r *citationRewriter) rewriteMarker(digits string) string {
	original, err := strconv.Atoi(digits)
	if err != nil || original < 1 || original > r.limit {
		// Dangling marker, drop it
		return ""
	}
	renumbered, ok := r.assigned[original]
	if !ok {
		r.order = append(r.order, original-1)
		renumbered = len(r.order)
		r.assigned[original] = renumbered
	}
	return "[" + strconv.Itoa(renumbered) + "]"
}
