package ingest

import (
	"strings"

	"github.com/rivo/uniseg"
)

// DisplayName shortens name to at most limit grapheme clusters, keeping the
// extension visible so "very-long-holiday-photo.jpg" becomes "very-lon….jpg".
func DisplayName(name string, limit int) string {
	if limit <= 0 || uniseg.GraphemeClusterCount(name) <= limit {
		return name
	}
	ext := ""
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		ext = name[i:]
	}
	extLen := uniseg.GraphemeClusterCount(ext)
	if extLen+2 > limit {
		ext, extLen = "", 0
	}
	keep := limit - extLen - 1
	stem := strings.TrimSuffix(name, ext)

	var b strings.Builder
	g := uniseg.NewGraphemes(stem)
	for n := 0; n < keep && g.Next(); n++ {
		b.WriteString(g.Str())
	}
	b.WriteString("…")
	b.WriteString(ext)
	return b.String()
}
