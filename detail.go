package main

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// ShopDetail carries the per-shop fields fetched from the detail API.
type ShopDetail struct {
	ShopID   string
	Phone    string
	Address  string
	Score    string
	AvgPrice string
}

// DetailFetcher pulls per-shop data from the JSON detail endpoint, which
// answers through the stricter API dispatch path (status envelope, retry
// budget, cold-start handling).
type DetailFetcher struct {
	engine *Engine
	fonts  FontSource
	logger Logger
}

func NewDetailFetcher(engine *Engine, fonts FontSource, logger Logger) *DetailFetcher {
	return &DetailFetcher{engine: engine, fonts: fonts, logger: logger}
}

// DetailURL builds the JSON endpoint URL for one shop.
func DetailURL(shopID string) string {
	return fmt.Sprintf("http://www.dianping.com/ajax/json/shopDynamic/basicHideInfo?shopId=%s", shopID)
}

// Fetch retrieves and decodes one shop's detail payload. Obfuscated text
// inside the JSON string literals is reversed before field extraction.
func (d *DetailFetcher) Fetch(shopID string) (*ShopDetail, error) {
	resp, err := d.engine.DispatchAPI(DetailURL(shopID))
	if err != nil {
		return nil, fmt.Errorf("shop %s detail: %w", shopID, err)
	}

	payload := string(resp.Body)
	maps, err := d.fonts.MapsFor(payload)
	if err != nil {
		return nil, fmt.Errorf("shop %s font maps: %w", shopID, err)
	}
	payload = DecodeGlyphs(payload, maps, ShapeEscapedJSON)

	return ParseShopDetail(shopID, payload), nil
}

// ParseShopDetail extracts the detail fields from a decoded envelope.
func ParseShopDetail(shopID, payload string) *ShopDetail {
	msg := gjson.Get(payload, "msg.shopInfo")
	return &ShopDetail{
		ShopID:   shopID,
		Phone:    msg.Get("phoneNo").String(),
		Address:  msg.Get("address").String(),
		Score:    msg.Get("fiveScore").String(),
		AvgPrice: msg.Get("avgPrice").String(),
	}
}
