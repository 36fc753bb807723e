package style

import "strings"

// DefaultOperator is the color table key used for operators without their own entry
const DefaultOperator = "DEFAULT"

// RGB is an 8-bit colour
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// White is used when the table has no DEFAULT entry
var White = RGB{255, 255, 255}

// ColorTable maps operator codes to their base colour
type ColorTable struct {
	colors map[string]RGB
}

// NewColorTable builds a table from entries. Keys are matched exactly, except that
// surrounding whitespace is ignored. DEFAULT is added as white when missing.
func NewColorTable(entries map[string]RGB) ColorTable {
	colors := make(map[string]RGB, len(entries)+1)
	for op, c := range entries {
		colors[strings.TrimSpace(op)] = c
	}
	if _, ok := colors[DefaultOperator]; !ok {
		colors[DefaultOperator] = White
	}
	return ColorTable{colors: colors}
}

// Lookup returns the base colour for op, falling back to DEFAULT
func (t ColorTable) Lookup(op string) RGB {
	if c, ok := t.colors[op]; ok {
		return c
	}
	if c, ok := t.colors[DefaultOperator]; ok {
		return c
	}
	return White
}

// Len returns the number of entries, DEFAULT included
func (t ColorTable) Len() int {
	return len(t.colors)
}

// Resolve returns op's colour rescaled to brightness
func (t ColorTable) Resolve(op string, brightness int) RGB {
	return Scale(t.Lookup(op), brightness)
}

// Scale rescales base so that its brightest channel equals brightness, keeping the hue.
// Channels are truncated and clamped to [0,255]. Black has no hue and stays black.
func Scale(base RGB, brightness int) RGB {
	maxChannel := max(base.R, base.G, base.B)
	if maxChannel == 0 {
		return RGB{}
	}

	k := float64(brightness) / float64(maxChannel)
	return RGB{
		R: clampChannel(float64(base.R) * k),
		G: clampChannel(float64(base.G) * k),
		B: clampChannel(float64(base.B) * k),
	}
}

func clampChannel(v float64) uint8 {
	c := int(v)
	if c < 0 {
		return 0
	}
	if c > 255 {
		return 255
	}
	return uint8(c)
}
