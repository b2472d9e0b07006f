package main

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ShopRecord is one search result row.
type ShopRecord struct {
	ShopID      string
	Name        string
	Stars       string
	ReviewCount string
	AvgPrice    string
	Region      string
	Address     string
	Recommends  []string
}

// Searcher fetches and extracts paginated keyword search results.
type Searcher struct {
	engine *Engine
	fonts  FontSource
	logger Logger
}

func NewSearcher(engine *Engine, fonts FontSource, logger Logger) *Searcher {
	return &Searcher{engine: engine, fonts: fonts, logger: logger}
}

// SearchURL builds the listing URL for one result page.
func SearchURL(cityID, keyword string, page int) string {
	return fmt.Sprintf("http://www.dianping.com/search/keyword/%s/0_%s/p%d", cityID, keyword, page)
}

// Search fetches one listing page through the credentialed proxy path,
// reverses the glyph obfuscation, and extracts the shop records.
func (s *Searcher) Search(pageURL string) ([]ShopRecord, error) {
	resp, err := s.engine.Dispatch(pageURL, ModeProxyWithCookie)
	if err != nil {
		return nil, fmt.Errorf("search page fetch: %w", err)
	}

	html := string(resp.Body)
	maps, err := s.fonts.MapsFor(html)
	if err != nil {
		return nil, fmt.Errorf("font maps: %w", err)
	}
	html = DecodeGlyphs(html, maps, ShapeRawSpan)

	records, err := ParseSearchPage(html)
	if err != nil {
		return nil, err
	}
	s.logger.Log("Extracted %d shops from %s", len(records), pageURL)
	return records, nil
}

// ParseSearchPage extracts shop records from decoded listing HTML.
func ParseSearchPage(html string) ([]ShopRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	var records []ShopRecord
	doc.Find("div#shop-all-list ul li").Each(func(_ int, li *goquery.Selection) {
		var rec ShopRecord

		title := li.Find(".tit a").First()
		rec.Name = strings.TrimSpace(title.Find("h4").Text())
		if href, ok := title.Attr("href"); ok {
			rec.ShopID = shopIDFromHref(href)
		}
		if rec.ShopID == "" {
			return // ad rows and separators carry no shop link
		}

		rec.Stars = strings.TrimSpace(li.Find(".nebula_star .star_score").Text())
		rec.ReviewCount = strings.TrimSpace(li.Find(".review-num b").Text())
		rec.AvgPrice = strings.TrimSpace(li.Find(".mean-price b").Text())
		rec.Region = strings.TrimSpace(li.Find(".tag-addr .tag").Last().Text())
		rec.Address = strings.TrimSpace(li.Find(".tag-addr .addr").Text())

		li.Find(".recommend a").Each(func(_ int, a *goquery.Selection) {
			if dish := strings.TrimSpace(a.Text()); dish != "" {
				rec.Recommends = append(rec.Recommends, dish)
			}
		})

		records = append(records, rec)
	})

	return records, nil
}

// shopIDFromHref pulls the shop id out of an /shop/<id> link.
func shopIDFromHref(href string) string {
	href = strings.TrimRight(href, "/")
	idx := strings.LastIndex(href, "/shop/")
	if idx < 0 {
		return ""
	}
	id := href[idx+len("/shop/"):]
	if cut := strings.IndexAny(id, "?#"); cut >= 0 {
		id = id[:cut]
	}
	return id
}
