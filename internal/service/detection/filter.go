package detection

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"arlens/internal/config"
	"arlens/internal/model"
)

// Filter decides which raw detector output is worth enriching.
type Filter struct {
	MinConfidence     float64
	MinWidth          int
	MinHeight         int
	MaxWidth          int
	MaxHeight         int
	MinTextLength     int
	MinDistinctRatio  float64
	MinPrintableRatio float64
}

// NewFilter builds a Filter from the detection validity settings.
func NewFilter(cfg *config.Config) Filter {
	return Filter{
		MinConfidence:     cfg.MinConfidence,
		MinWidth:          cfg.MinBoxWidth,
		MinHeight:         cfg.MinBoxHeight,
		MaxWidth:          cfg.MaxBoxWidth,
		MaxHeight:         cfg.MaxBoxHeight,
		MinTextLength:     cfg.MinTextLength,
		MinDistinctRatio:  cfg.MinDistinctRatio,
		MinPrintableRatio: cfg.MinPrintableRatio,
	}
}

// Accept validates d against a width x height frame. The returned detection
// has its text trimmed and its box clipped to the frame.
func (f Filter) Accept(d model.Detection, width, height int) (model.Detection, bool) {
	if d.Confidence < f.MinConfidence {
		return model.Detection{}, false
	}

	box, ok := d.Box.ClipTo(width, height)
	if !ok {
		return model.Detection{}, false
	}
	if box.W < f.MinWidth || box.H < f.MinHeight || box.W > f.MaxWidth || box.H > f.MaxHeight {
		return model.Detection{}, false
	}

	text := strings.TrimSpace(d.Text)
	if !f.validText(text) {
		return model.Detection{}, false
	}

	return model.Detection{Text: text, Box: box, Confidence: d.Confidence}, true
}

func (f Filter) validText(text string) bool {
	total := utf8.RuneCountInString(text)
	if total == 0 || total < f.MinTextLength {
		return false
	}

	distinct := make(map[rune]struct{}, total)
	printable := 0
	for _, r := range text {
		distinct[r] = struct{}{}
		if isTextRune(r) {
			printable++
		}
	}

	if float64(len(distinct))/float64(total) < f.MinDistinctRatio {
		return false
	}
	return float64(printable)/float64(total) >= f.MinPrintableRatio
}

// isTextRune reports letters, digits, spaces and the punctuation that shows
// up on signs and labels.
func isTextRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
		return true
	}
	return strings.ContainsRune(".,:;!?'\"-()&/%#@+", r)
}
