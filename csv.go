package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// utf8BOM makes the output open cleanly in spreadsheet tools that guess
// the encoding of CJK text.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVSink appends crawl rows to a CSV file with a fixed column order.
type CSVSink struct {
	file   *os.File
	writer *csv.Writer
	fields []string
}

// NewCSVSink creates (or truncates) the output file and writes the BOM
// and header row.
func NewCSVSink(path string, fields []string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(utf8BOM); err != nil {
		f.Close()
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(fields); err != nil {
		f.Close()
		return nil, err
	}

	return &CSVSink{file: f, writer: w, fields: fields}, nil
}

// Write appends one row. Missing fields are written empty; extra keys in
// the row are ignored.
func (s *CSVSink) Write(row map[string]string) error {
	record := make([]string, len(s.fields))
	for i, field := range s.fields {
		record[i] = row[field]
	}
	return s.writer.Write(record)
}

// Flush pushes buffered rows to disk.
func (s *CSVSink) Flush() error {
	s.writer.Flush()
	return s.writer.Error()
}

// Close flushes and closes the file.
func (s *CSVSink) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// shopRow flattens a search record and its optional detail into a CSV row.
func shopRow(rec ShopRecord, detail *ShopDetail) map[string]string {
	row := map[string]string{
		"shop_id":      rec.ShopID,
		"name":         rec.Name,
		"stars":        rec.Stars,
		"review_count": rec.ReviewCount,
		"avg_price":    rec.AvgPrice,
		"region":       rec.Region,
		"address":      rec.Address,
		"recommends":   strings.Join(rec.Recommends, "|"),
	}
	if detail != nil {
		row["phone"] = detail.Phone
		row["score"] = detail.Score
		if detail.Address != "" {
			row["address"] = detail.Address
		}
		if detail.AvgPrice != "" {
			row["avg_price"] = detail.AvgPrice
		}
	}
	return row
}

// shopFields is the stable CSV column order.
var shopFields = []string{
	"shop_id", "name", "stars", "review_count", "avg_price",
	"region", "address", "phone", "score", "recommends",
}
