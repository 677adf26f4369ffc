package knowledge

import (
	"strings"
)

const (
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is how many characters consecutive chunks may share.
	DefaultChunkOverlap = 100
)

// separators are tried in order when choosing where a chunk ends.
var separators = []string{"\n\n", "\n", " "}

// Piece is a contiguous slice of the source text. Start and End are rune
// offsets into the source.
type Piece struct {
	Text  string
	Start int
	End   int
}

// Splitter cuts text into overlapping pieces no longer than Size runes,
// preferring paragraph, then line, then word boundaries.
type Splitter struct {
	Size    int
	Overlap int
}

// NewSplitter returns a splitter, falling back to the defaults for
// non-positive or inconsistent values.
func NewSplitter(size, overlap int) Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = min(DefaultChunkOverlap, size/2)
	}
	return Splitter{Size: size, Overlap: overlap}
}

// Split returns the pieces of text. Whitespace-only input yields none.
func (s Splitter) Split(text string) []Piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	var pieces []Piece

	start := 0
	for start < n {
		end := min(start+s.Size, n)
		if end < n {
			end = s.boundary(runes, start, end)
		}

		pieces = append(pieces, Piece{Text: string(runes[start:end]), Start: start, End: end})
		if end == n {
			break
		}

		next := s.nextStart(runes, start, end)
		start = next
	}

	return pieces
}

// boundary picks the cut point in (start, end]. The cut must leave room
// for the overlap so the next piece still advances.
func (s Splitter) boundary(runes []rune, start, end int) int {
	floor := start + s.Overlap + 1
	for _, sep := range separators {
		sr := []rune(sep)
		for i := end - len(sr); i >= floor-len(sr) && i > start; i-- {
			if matchAt(runes, i, sr) {
				cut := i + len(sr)
				if cut > start+s.Overlap && cut <= end {
					return cut
				}
			}
		}
	}
	return end
}

// nextStart backs up by at most Overlap runes, snapping forward to the
// first word boundary inside the overlap window when there is one.
func (s Splitter) nextStart(runes []rune, start, end int) int {
	next := end - s.Overlap
	if next <= start {
		return end
	}
	for i := next; i < end; i++ {
		if runes[i] == ' ' || runes[i] == '\n' {
			if i+1 < end {
				return i + 1
			}
			break
		}
	}
	return next
}

func matchAt(runes []rune, i int, sep []rune) bool {
	if i < 0 || i+len(sep) > len(runes) {
		return false
	}
	for j, r := range sep {
		if runes[i+j] != r {
			return false
		}
	}
	return true
}

// Reconstruct rebuilds the source from ordered pieces by dropping each
// piece's overlap with its predecessor.
func Reconstruct(pieces []Piece) string {
	var b strings.Builder
	prevEnd := 0
	for i, p := range pieces {
		r := []rune(p.Text)
		skip := 0
		if i > 0 {
			skip = prevEnd - p.Start
		}
		if skip < 0 || skip > len(r) {
			skip = 0
		}
		b.WriteString(string(r[skip:]))
		prevEnd = p.End
	}
	return b.String()
}
