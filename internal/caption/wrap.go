package caption

import "strings"

// Measurer reports the rendered width of a string in pixels.
type Measurer interface {
	Measure(s string) int
}

// MeasureFunc adapts a function to Measurer.
type MeasureFunc func(s string) int

func (f MeasureFunc) Measure(s string) int { return f(s) }

// WrapText lays text out in lines no wider than maxWidth and returns the
// number of lines. Explicit newlines start a new paragraph and an empty
// paragraph still takes one line. Words are packed greedily; a word wider
// than maxWidth gets a line of its own.
//
// When draw is nil nothing is emitted and only the count is computed, so a
// caller can size the block before drawing it. Both modes return the same
// count for the same input.
func WrapText(m Measurer, text string, maxWidth int, draw func(line string, index int)) int {
	n := 0
	emit := func(line string) {
		if draw != nil {
			draw(line, n)
		}
		n++
	}

	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			emit("")
			continue
		}

		line := words[0]
		for _, word := range words[1:] {
			candidate := line + " " + word
			if m.Measure(candidate) > maxWidth {
				emit(line)
				line = word
				continue
			}
			line = candidate
		}
		emit(line)
	}
	return n
}

// Lines returns the wrapped lines of text.
func Lines(m Measurer, text string, maxWidth int) []string {
	var out []string
	WrapText(m, text, maxWidth, func(line string, _ int) {
		out = append(out, line)
	})
	return out
}
