package main

import "testing"

func TestParseShopDetail(t *testing.T) {
	payload := `{"code":200,"msg":{"shopInfo":{"phoneNo":"010-12345678","address":"成府路28号","fiveScore":"4.8","avgPrice":"120"}}}`

	got := ParseShopDetail("42", payload)
	want := &ShopDetail{
		ShopID:   "42",
		Phone:    "010-12345678",
		Address:  "成府路28号",
		Score:    "4.8",
		AvgPrice: "120",
	}
	if *got != *want {
		t.Errorf("detail = %+v, want %+v", got, want)
	}
}

func TestParseShopDetailMissingFields(t *testing.T) {
	got := ParseShopDetail("42", `{"code":200,"msg":{}}`)
	if got.ShopID != "42" || got.Phone != "" || got.Address != "" {
		t.Errorf("detail = %+v", got)
	}
}

func TestDetailURL(t *testing.T) {
	got := DetailURL("H8KmzBdE2WTRA7wW")
	want := "http://www.dianping.com/ajax/json/shopDynamic/basicHideInfo?shopId=H8KmzBdE2WTRA7wW"
	if got != want {
		t.Errorf("DetailURL = %q, want %q", got, want)
	}
}

// Markers inside JSON string literals carry escaped quotes; the fetcher
// must decode them before field extraction.
func TestDetailFetcherDecodesEscapedPayload(t *testing.T) {
	body := `{"code":200,"msg":{"shopInfo":{"phoneNo":"<svgmtsi class=\"shopNum\">&#xE001;</svgmtsi>23","address":"成府路28号"}}}`
	client := &fakeClient{exchanges: []fakeExchange{{body: body}}}
	e, _ := newTestEngine(t, testConfig(), client, nil)
	fonts := StaticFontSource{"shopNum": FontMap{"uniE001": "1"}}

	d := NewDetailFetcher(e, fonts, &testLogger{t})
	detail, err := d.Fetch("42")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if want := `<svgmtsi class="shopNum">1</svgmtsi>23`; detail.Phone != want {
		t.Errorf("Phone = %q, want %q", detail.Phone, want)
	}
	if detail.Address != "成府路28号" {
		t.Errorf("Address = %q", detail.Address)
	}
}
