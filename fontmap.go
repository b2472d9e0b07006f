package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// FontLoader produces a FontMap from a font file on disk. The binary
// parsing itself lives behind this interface; the engine only consumes the
// finished code-point-to-character lookup.
type FontLoader interface {
	Load(path string) (FontMap, error)
}

// FontLoaderFunc adapts a function to the FontLoader interface.
type FontLoaderFunc func(path string) (FontMap, error)

func (f FontLoaderFunc) Load(path string) (FontMap, error) {
	return f(path)
}

// CachingLoader memoizes Load results per path. The same font file is
// referenced by every page of a crawl session, so parsing it once is
// enough.
type CachingLoader struct {
	mu    sync.Mutex
	next  FontLoader
	cache map[string]FontMap
}

func NewCachingLoader(next FontLoader) *CachingLoader {
	return &CachingLoader{
		next:  next,
		cache: make(map[string]FontMap),
	}
}

func (c *CachingLoader) Load(path string) (FontMap, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fm, ok := c.cache[path]; ok {
		return fm, nil
	}
	fm, err := c.next.Load(path)
	if err != nil {
		return nil, err
	}
	c.cache[path] = fm
	return fm, nil
}

// fontFaceRe pulls (font-family, woff URL) pairs out of the obfuscation
// stylesheet. The site serves one @font-face block per region it encrypts.
var fontFaceRe = regexp.MustCompile(`@font-face\s*{[^}]*?font-family:\s*["']?([\w-]+)["']?[^}]*?url\(["']?([^"')]+\.woff[^"')]*)["']?\)`)

// ParseFontFaces extracts fontID -> font URL from a stylesheet body.
// Scheme-relative URLs are normalized to http.
func ParseFontFaces(css string) map[string]string {
	faces := make(map[string]string)
	for _, m := range fontFaceRe.FindAllStringSubmatch(css, -1) {
		u := m[2]
		if strings.HasPrefix(u, "//") {
			u = "http:" + u
		}
		faces[m[1]] = u
	}
	return faces
}

// FontSource yields the decoded font maps for a fetched document.
// Tests and callers without obfuscated content use a stub.
type FontSource interface {
	MapsFor(doc string) (map[string]FontMap, error)
}

// StaticFontSource returns the same maps for every document.
type StaticFontSource map[string]FontMap

func (s StaticFontSource) MapsFor(string) (map[string]FontMap, error) {
	return s, nil
}

// cssLinkRe finds the obfuscation stylesheet reference inside a page.
var cssLinkRe = regexp.MustCompile(`//s3plus\.meituan\.net/[^"'\s]+\.css`)

// AssetFontSource discovers the obfuscation stylesheet in a document,
// downloads the fonts it references through the uncredentialed path, and
// builds a FontMap per font id via the loader. Font downloads bypass
// pacing and credentials on purpose: asset hosts don't rate-limit and the
// markers would never decode if the font fetch itself burned budget.
type AssetFontSource struct {
	engine *Engine
	loader FontLoader
	dir    string
	logger Logger
}

func NewAssetFontSource(engine *Engine, loader FontLoader, dir string, logger Logger) *AssetFontSource {
	return &AssetFontSource{
		engine: engine,
		loader: NewCachingLoader(loader),
		dir:    dir,
		logger: logger,
	}
}

func (a *AssetFontSource) MapsFor(doc string) (map[string]FontMap, error) {
	cssURL := cssLinkRe.FindString(doc)
	if cssURL == "" {
		return nil, nil // page carries no obfuscated text
	}
	if strings.HasPrefix(cssURL, "//") {
		cssURL = "http:" + cssURL
	}

	resp, err := a.engine.Dispatch(cssURL, ModeNoHeader)
	if err != nil {
		return nil, fmt.Errorf("fetch obfuscation stylesheet: %w", err)
	}

	faces := ParseFontFaces(string(resp.Body))
	maps := make(map[string]FontMap, len(faces))
	for fontID, fontURL := range faces {
		path, err := a.fetchFontAsset(fontURL)
		if err != nil {
			return nil, fmt.Errorf("font %s: %w", fontID, err)
		}
		fm, err := a.loader.Load(path)
		if err != nil {
			return nil, fmt.Errorf("font %s: %w", fontID, err)
		}
		maps[fontID] = fm
	}
	return maps, nil
}

// fetchFontAsset downloads a font file once and returns its local path.
// An already-downloaded file is reused.
func (a *AssetFontSource) fetchFontAsset(fontURL string) (string, error) {
	path := filepath.Join(a.dir, filepath.Base(fontURL))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	resp, err := a.engine.Dispatch(fontURL, ModeNoHeader)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, resp.Body, 0o644); err != nil {
		return "", err
	}
	a.logger.Log("Downloaded font asset %s", filepath.Base(path))
	return path, nil
}

// loadFontFile reads the code-point table for a downloaded font asset.
// Extracting the table from the binary font is the font tooling's job; it
// drops a "<asset>.json" file ({"uniE001": "鸡", ...}) next to the asset,
// and this loader only consumes it.
func loadFontFile(path string) (FontMap, error) {
	data, err := os.ReadFile(path + ".json")
	if err != nil {
		return nil, fmt.Errorf("font table for %s: %w", filepath.Base(path), err)
	}
	var fm FontMap
	if err := json.Unmarshal(data, &fm); err != nil {
		return nil, fmt.Errorf("font table for %s: %w", filepath.Base(path), err)
	}
	return fm, nil
}
