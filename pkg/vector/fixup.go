package vector

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

// Pie chart generators centre the title with text-anchor:middle, which
// measuring backends without CSS support place left-aligned at x. The fix
// drops the declaration and moves x left by half the estimated text width.
var (
	pieTitleRuleRe = regexp.MustCompile(`(\.pieTitleText\s*\{[^}]*?)text-anchor\s*:\s*middle\s*;?`)
	pieTitleTextRe = regexp.MustCompile(`<text\b[^>]*\bclass="[^"]*\bpieTitleText\b[^"]*"[^>]*>([^<]*)</text>`)
	pieFontSizeRe  = regexp.MustCompile(`\.pieTitleText\s*\{[^}]*?font-size\s*:\s*([0-9.]+)px`)
	xAttrRe        = regexp.MustCompile(`\sx="(-?[0-9.]+)"`)
)

const (
	defaultTitleFontSize = 25.0
	avgGlyphWidth        = 0.6 // em
)

// FixGeneratedSVG corrects known generator quirks for the given diagram
// type. Markup for any other type is returned unchanged.
func FixGeneratedSVG(markup, diagramType string) string {
	switch strings.ToLower(diagramType) {
	case "pie":
		return fixPieTitle(markup)
	}
	return markup
}

func fixPieTitle(markup string) string {
	if !pieTitleRuleRe.MatchString(markup) {
		return markup
	}

	fontSize := defaultTitleFontSize
	if m := pieFontSizeRe.FindStringSubmatch(markup); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
			fontSize = v
		}
	}

	markup = pieTitleRuleRe.ReplaceAllString(markup, "$1")

	return pieTitleTextRe.ReplaceAllStringFunc(markup, func(tag string) string {
		m := pieTitleTextRe.FindStringSubmatch(tag)
		title := html.UnescapeString(strings.TrimSpace(m[1]))
		shift := float64(len([]rune(title))) * fontSize * avgGlyphWidth / 2

		return xAttrRe.ReplaceAllStringFunc(tag, func(attr string) string {
			x, err := strconv.ParseFloat(xAttrRe.FindStringSubmatch(attr)[1], 64)
			if err != nil {
				return attr
			}
			return ` x="` + formatFloat(x-shift) + `"`
		})
	})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
