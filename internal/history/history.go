// Package history smooths per-window measurements over a short ring of
// recent windows so that single-window misclassifications do not move the
// volume.
package history

import "github.com/aceituno/teleagc/internal/classify"

// Minimum occurrences in the ring before a label may win predominance.
// Music needs the most agreement because turning the volume down on
// misread dialogue is the worse failure.
const (
	minSamplesDialogue = 2
	minSamplesMusic    = 3
	minSamplesUnknown  = 1
)

// Window is a pair of fixed-size rings over recent dB readings and
// classification results. New entries evict the oldest; the backing arrays
// are never reallocated.
type Window struct {
	levels  []float64
	results []classify.Result
	next    int
	filled  int
}

// New creates a smoothing window over the last size entries.
func New(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{
		levels:  make([]float64, size),
		results: make([]classify.Result, size),
	}
}

// Push appends one window's measurement and classification.
func (w *Window) Push(db float64, r classify.Result) {
	w.levels[w.next] = db
	w.results[w.next] = r
	w.next = (w.next + 1) % len(w.levels)
	if w.filled < len(w.levels) {
		w.filled++
	}
}

// Len reports how many entries the ring currently holds.
func (w *Window) Len() int { return w.filled }

// SmoothedDB returns the mean of the buffered dB readings, or 0 when
// empty.
func (w *Window) SmoothedDB() float64 {
	if w.filled == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < w.filled; i++ {
		sum += w.levels[i]
	}
	return sum / float64(w.filled)
}

// Predominant returns the confidence-weighted winner among the buffered
// labels with its smoothed confidence. A label only wins with at least its
// minimum sample count; otherwise, and on an exact weight tie between
// dialogue and music, the result is Unknown.
func (w *Window) Predominant() (classify.Label, float64) {
	if w.filled == 0 {
		return classify.Unknown, 0
	}

	var counts [3]int
	var weights [3]float64
	for i := 0; i < w.filled; i++ {
		r := w.results[i]
		counts[r.Label]++
		weights[r.Label] += r.Confidence
	}

	winner := classify.Unknown
	switch {
	case weights[classify.Dialogue] > weights[classify.Music] && weights[classify.Dialogue] > weights[classify.Unknown]:
		winner = classify.Dialogue
	case weights[classify.Music] > weights[classify.Dialogue] && weights[classify.Music] > weights[classify.Unknown]:
		winner = classify.Music
	}

	if counts[winner] < minSamples(winner) {
		winner = classify.Unknown
	}
	if counts[winner] == 0 {
		return classify.Unknown, 0
	}
	return winner, weights[winner] / float64(counts[winner])
}

func minSamples(l classify.Label) int {
	switch l {
	case classify.Dialogue:
		return minSamplesDialogue
	case classify.Music:
		return minSamplesMusic
	default:
		return minSamplesUnknown
	}
}
