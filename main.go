package main

import (
	"context"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	workerStaggerDelay   = 50 * time.Millisecond
	fullSearchPageSize   = 15
	defaultDetailWorkers = 1
)

var engineLog *log.Logger

type moduleLogger struct {
	logger *log.Logger
}

func (m *moduleLogger) Log(format string, args ...any) {
	m.logger.Printf("      "+format, args...)
}

func main() {
	_ = godotenv.Load()

	engineLogFile, crawlLogFile, crawlLog := setupLogging()
	defer engineLogFile.Close()
	defer crawlLogFile.Close()

	cfg, err := LoadConfig()
	if err != nil {
		engineLog.Fatalf("Configuration error: %v", err)
	}

	pages, workers := parseArgs(cfg)

	os.Exit(run(cfg, pages, workers, &moduleLogger{logger: crawlLog}))
}

func parseArgs(cfg *Config) (pages, workers int) {
	pages = cfg.SearchPages
	workers = defaultDetailWorkers

	args := os.Args[1:]
	var err error
	if len(args) >= 1 {
		if pages, err = strconv.Atoi(args[0]); err != nil || pages <= 0 {
			log.Fatal("Usage: dianping-crawler [pages] [detail-workers]")
		}
	}
	if len(args) >= 2 {
		if workers, err = strconv.Atoi(args[1]); err != nil || workers <= 0 {
			log.Fatal("detail-workers must be a positive integer")
		}
	}
	return pages, workers
}

func setupLogging() (engineLogFile, crawlLogFile *os.File, crawlLog *log.Logger) {
	var err error

	engineLogFile, err = os.OpenFile("engine.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("Failed to open engine log file: %v", err)
	}
	engineLog = log.New(io.MultiWriter(os.Stdout, engineLogFile), "", log.LstdFlags)

	crawlLogFile, err = os.OpenFile("crawler.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		engineLog.Fatalf("Failed to open crawler log file: %v", err)
	}
	crawlLog = log.New(io.MultiWriter(os.Stdout, crawlLogFile), "", log.LstdFlags)

	return engineLogFile, crawlLogFile, crawlLog
}

func run(cfg *Config, pages, workers int, logger Logger) int {
	engine, err := NewDefaultEngine(cfg, logger)
	if err != nil {
		engineLog.Printf("Failed to build engine: %v", err)
		return 1
	}

	fonts := NewAssetFontSource(engine, FontLoaderFunc(loadFontFile), "fonts", logger)
	searcher := NewSearcher(engine, fonts, logger)
	fetcher := NewDetailFetcher(engine, fonts, logger)

	sink, err := NewCSVSink(cfg.OutputFile, shopFields)
	if err != nil {
		engineLog.Printf("Failed to open output: %v", err)
		return 1
	}
	defer sink.Close()

	pool := NewDetailPool(workers, fetcher, workerStaggerDelay, logger)
	pool.Start(context.Background())

	engineLog.Printf("Crawling %d search pages for %q in city %s (%d detail workers)",
		pages, cfg.Keyword, cfg.CityID, workers)

	total := 0
	for page := 1; page <= pages; page++ {
		records, err := searcher.Search(SearchURL(cfg.CityID, cfg.Keyword, page))
		if err != nil {
			engineLog.Printf("Page %d failed: %v", page, err)
			break
		}
		if len(records) == 0 {
			engineLog.Printf("Page %d empty, stopping", page)
			break
		}

		byID := make(map[string]ShopRecord, len(records))
		go func(recs []ShopRecord) {
			for _, rec := range recs {
				pool.Submit(rec.ShopID)
			}
		}(records)
		for _, rec := range records {
			byID[rec.ShopID] = rec
		}

		for range records {
			result := <-pool.Results()
			if result.Fatal {
				engineLog.Printf("FATAL: %v", result.Err)
				return 1
			}
			rec := byID[result.ShopID]
			if result.Err != nil {
				logger.Log("Detail for %s failed: %v", result.ShopID, result.Err)
			}
			if err := sink.Write(shopRow(rec, result.Detail)); err != nil {
				engineLog.Printf("CSV write failed: %v", err)
				return 1
			}
			total++
		}
		if err := sink.Flush(); err != nil {
			engineLog.Printf("CSV flush failed: %v", err)
			return 1
		}

		engineLog.Printf("[page %d/%d] %d shops written (%d total, %d requests so far)",
			page, pages, len(records), total, engine.pacer.Count())

		// A short page means the result set ran out.
		if len(records) < fullSearchPageSize {
			engineLog.Printf("Page %d returned fewer than %d shops, stopping", page, fullSearchPageSize)
			break
		}
	}

	pool.Close()
	engineLog.Printf("=== Complete: %d shops written to %s ===", total, cfg.OutputFile)
	return 0
}
