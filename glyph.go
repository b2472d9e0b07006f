package main

import (
	"sort"
	"strings"
)

// FontMap maps an obfuscated code point to the real character it renders
// as under a per-page custom font. Keys are glyph names as they come out
// of the font file, e.g. "uniE001". Built by the font collaborator
// (fontmap.go); read-only here.
type FontMap map[string]string

// TextShape selects the marker grammar the decoder rewrites.
type TextShape int

const (
	// ShapeRawSpan anchors markers to the font-id attribute value with the
	// code point as a numeric character reference. Search-page HTML.
	ShapeRawSpan TextShape = iota
	// ShapeDelimitedSpan anchors markers to the code point's own glyph
	// name bracketed by its tag delimiters, for regions where several font
	// ids share one document. Review HTML.
	ShapeDelimitedSpan
	// ShapeEscapedJSON is ShapeRawSpan with backslash-escaped quotes, for
	// text embedded inside a JSON string literal. API payloads.
	ShapeEscapedJSON
)

// charRef turns a glyph name into the numeric character reference the page
// embeds, e.g. "uniE001" -> "&#xE001;". A key without the "uni" prefix is
// taken as the bare hex code point.
func charRef(glyphName string) string {
	return "&#x" + strings.TrimPrefix(glyphName, "uni") + ";"
}

// DecodeGlyphs rewrites every obfuscated marker in text back into its real
// character. Every (fontID, codePoint) pair is attempted exactly once, in
// sorted order so the result is deterministic; a marker not present in the
// text is a no-op. Substitution is exact literal replacement, never a
// pattern match, so already-decoded text passes through unchanged as long
// as replacement characters don't themselves form markers (the map
// builder's obligation).
func DecodeGlyphs(text string, fontMaps map[string]FontMap, shape TextShape) string {
	fontIDs := make([]string, 0, len(fontMaps))
	for id := range fontMaps {
		fontIDs = append(fontIDs, id)
	}
	sort.Strings(fontIDs)

	for _, fontID := range fontIDs {
		fm := fontMaps[fontID]

		glyphs := make([]string, 0, len(fm))
		for g := range fm {
			glyphs = append(glyphs, g)
		}
		sort.Strings(glyphs)

		for _, glyph := range glyphs {
			char := fm[glyph]

			var marker, replacement string
			switch shape {
			case ShapeRawSpan:
				marker = `"` + fontID + `">` + charRef(glyph)
				replacement = `"` + fontID + `">` + char
			case ShapeDelimitedSpan:
				marker = `"` + glyph + `"><`
				replacement = `"` + glyph + `">` + char + `<`
			case ShapeEscapedJSON:
				marker = `\"` + fontID + `\">` + charRef(glyph)
				replacement = `\"` + fontID + `\">` + char
			}

			text = strings.ReplaceAll(text, marker, replacement)
		}
	}
	return text
}
