// Package render turns the latest frame and the latest results into overlay
// images for viewers at a steady display rate.
package render

import (
	"fmt"
	"math"

	"arlens/internal/model"
)

const (
	labelAbove = 10
	labelBelow = 20
)

// Label is one line of overlay text anchored at its baseline origin.
type Label struct {
	Text        string
	X           int
	Y           int
	Translation bool
}

// Layout places the labels for results: the original text with its
// confidence above each box and, when it differs, the derived text below it.
func Layout(results []model.EnrichedResult) []Label {
	labels := make([]Label, 0, 2*len(results))
	for _, r := range results {
		labels = append(labels, Label{
			Text: fmt.Sprintf("%s (%d%%)", r.Original, confidencePercent(r.Confidence)),
			X:    r.Box.X,
			Y:    r.Box.Y - labelAbove,
		})
		if r.Derived != r.Original {
			labels = append(labels, Label{
				Text:        r.Derived,
				X:           r.Box.X,
				Y:           r.Box.Y + r.Box.H + labelBelow,
				Translation: true,
			})
		}
	}
	return labels
}

func confidencePercent(c float64) int {
	return int(math.Round(c * 100))
}
