package main

import "testing"

func TestDecodeGlyphsRawSpan(t *testing.T) {
	text := `<svgmtsi class="shopNum" style='font-family: "font-id1">&#xE001;</svgmtsi>`
	maps := map[string]FontMap{"font-id1": {"E001": "鸡"}}

	got := DecodeGlyphs(text, maps, ShapeRawSpan)
	want := `<svgmtsi class="shopNum" style='font-family: "font-id1">鸡</svgmtsi>`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDecodeGlyphsDelimitedSpan(t *testing.T) {
	// Review regions anchor on the glyph name itself, not the font id.
	text := `<svgmtsi class="uniE001"><path/></svgmtsi>`
	maps := map[string]FontMap{"review-font": {"uniE001": "好"}}

	got := DecodeGlyphs(text, maps, ShapeDelimitedSpan)
	want := `<svgmtsi class="uniE001">好<path/></svgmtsi>`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDecodeGlyphsEscapedJSON(t *testing.T) {
	text := `{"name":"店铺 class=\"num-font\">&#xE2A1; 分店"}`
	maps := map[string]FontMap{"num-font": {"uniE2A1": "八"}}

	got := DecodeGlyphs(text, maps, ShapeEscapedJSON)
	want := `{"name":"店铺 class=\"num-font\">八 分店"}`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDecodeGlyphsEmptyMapIsIdentity(t *testing.T) {
	text := `anything "f1">&#xE001; here`
	for _, shape := range []TextShape{ShapeRawSpan, ShapeDelimitedSpan, ShapeEscapedJSON} {
		if got := DecodeGlyphs(text, nil, shape); got != text {
			t.Errorf("shape %d: empty maps changed text: %q", shape, got)
		}
		if got := DecodeGlyphs(text, map[string]FontMap{"f1": {}}, shape); got != text {
			t.Errorf("shape %d: empty font map changed text: %q", shape, got)
		}
	}
}

func TestDecodeGlyphsIdempotent(t *testing.T) {
	text := `row "f1">&#xE001; and "f1">&#xE002; end`
	maps := map[string]FontMap{"f1": {"uniE001": "一", "uniE002": "二"}}

	once := DecodeGlyphs(text, maps, ShapeRawSpan)
	twice := DecodeGlyphs(once, maps, ShapeRawSpan)
	if once != twice {
		t.Fatalf("decode not idempotent:\nonce:  %q\ntwice: %q", once, twice)
	}
	want := `row "f1">一 and "f1">二 end`
	if once != want {
		t.Fatalf("got %q, want %q", once, want)
	}
}

func TestDecodeGlyphsAbsentMarkerIsNoop(t *testing.T) {
	text := "no markers at all"
	maps := map[string]FontMap{"f1": {"uniE001": "一"}}
	if got := DecodeGlyphs(text, maps, ShapeRawSpan); got != text {
		t.Fatalf("absent marker altered text: %q", got)
	}
}

func TestDecodeGlyphsMultipleFontsDeterministic(t *testing.T) {
	text := `"a-font">&#xE001; mid "b-font">&#xE001; end`
	maps := map[string]FontMap{
		"b-font": {"uniE001": "乙"},
		"a-font": {"uniE001": "甲"},
	}

	want := `"a-font">甲 mid "b-font">乙 end`
	for i := 0; i < 10; i++ {
		if got := DecodeGlyphs(text, maps, ShapeRawSpan); got != want {
			t.Fatalf("run %d: got %q, want %q", i, got, want)
		}
	}
}
