// Package router picks the cheapest sufficient extraction strategy for
// a document before the pipeline runs.
package router

import (
	"strings"

	"github.com/doculens/extraction-engine/internal/domain"
)

// DocumentMeta is the lightweight probe summary routing decides on.
type DocumentMeta struct {
	MediaType               string
	Size                    int64
	PageCount               int
	MachineReadableFraction float64 // pages with machine-readable text / total pages
	ImageOnlyFraction       float64 // image-only pages / total pages
	TableKeywordDensity     float64 // table-hint tokens / total tokens
	ScannedHint             bool    // content mentions scanning
}

// Config holds routing thresholds.
type Config struct {
	// NativeTextMaxBytes is the size ceiling for the native-text strategy.
	NativeTextMaxBytes int64
	// MachineReadableMin is the machine-readable page fraction required
	// for the native-text strategy.
	MachineReadableMin float64
	// TableKeywordMin is the keyword density that routes table-focused.
	TableKeywordMin float64
}

// DefaultConfig returns routing thresholds tuned for typical documents.
func DefaultConfig() Config {
	return Config{
		NativeTextMaxBytes: 32 << 20,
		MachineReadableMin: 0.5,
		TableKeywordMin:    0.15,
	}
}

// Router decides the extraction strategy plan for a document.
type Router struct {
	cfg Config
}

// New creates a router.
func New(cfg Config) *Router {
	if cfg.NativeTextMaxBytes <= 0 {
		cfg.NativeTextMaxBytes = 32 << 20
	}
	if cfg.MachineReadableMin <= 0 {
		cfg.MachineReadableMin = 0.5
	}
	if cfg.TableKeywordMin <= 0 {
		cfg.TableKeywordMin = 0.15
	}
	return &Router{cfg: cfg}
}

// tableHints are tokens whose density suggests dense tabular content.
var tableHints = []string{
	"$", "€", "£", "total", "subtotal", "amount", "balance", "invoice",
	"qty", "quantity", "rate", "schedule", "deadline", "due",
}

// scanHints are tokens that suggest a scanned document.
var scanHints = []string{"scan", "scanned", "scanner", "photocopy", "fax"}

// BuildMeta probes decoded pages into routing metadata. Probing must
// never fail the job: a panic from malformed content yields an empty
// meta, which Route maps to the fallback strategy.
func BuildMeta(doc domain.Document, pages []domain.Page) (meta DocumentMeta) {
	defer func() {
		if r := recover(); r != nil {
			meta = DocumentMeta{MediaType: doc.MediaType, Size: doc.Size}
		}
	}()

	meta = DocumentMeta{
		MediaType: doc.MediaType,
		Size:      doc.Size,
		PageCount: len(pages),
	}

	if len(pages) == 0 {
		return meta
	}

	readable := 0
	imageOnly := 0
	hintTokens := 0
	totalTokens := 0
	for _, page := range pages {
		if page.ImageOnly {
			imageOnly++
			continue
		}
		text := page.RawText
		if text == "" && len(page.Runs) > 0 {
			parts := make([]string, 0, len(page.Runs))
			for _, run := range page.Runs {
				parts = append(parts, run.Text)
			}
			text = strings.Join(parts, " ")
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		readable++

		lower := strings.ToLower(text)
		for _, hint := range scanHints {
			if strings.Contains(lower, hint) {
				meta.ScannedHint = true
				break
			}
		}

		for _, token := range strings.Fields(lower) {
			totalTokens++
			for _, hint := range tableHints {
				if strings.Contains(token, hint) {
					hintTokens++
					break
				}
			}
		}
	}

	meta.MachineReadableFraction = float64(readable) / float64(len(pages))
	meta.ImageOnlyFraction = float64(imageOnly) / float64(len(pages))
	if totalTokens > 0 {
		meta.TableKeywordDensity = float64(hintTokens) / float64(totalTokens)
	}

	return meta
}

// Route picks a strategy plan. Pure decision function; it never fails.
// Priority order, first match wins:
//
//  1. predominantly machine-readable and small enough -> native-text
//  2. dense tabular content (or a spreadsheet container) -> table-focused
//  3. image-only or scanned-looking pages -> ocr
//  4. anything else -> raw fallback with a low-confidence flag
func (r *Router) Route(meta DocumentMeta) domain.StrategyPlan {
	tabular := meta.TableKeywordDensity >= r.cfg.TableKeywordMin ||
		meta.MediaType == domain.MediaTypeXlsx

	switch {
	// A spreadsheet container is a structural probe for tabular content,
	// so it never counts as predominantly plain text.
	case meta.MachineReadableFraction >= r.cfg.MachineReadableMin &&
		meta.Size <= r.cfg.NativeTextMaxBytes &&
		meta.MediaType != domain.MediaTypeXlsx:
		return domain.StrategyPlan{
			Primary:       domain.StrategyNativeText,
			FallbackChain: []domain.Strategy{domain.StrategyOCR, domain.StrategyFallback},
		}

	case tabular:
		return domain.StrategyPlan{
			Primary:       domain.StrategyTableFocused,
			FallbackChain: []domain.Strategy{domain.StrategyNativeText, domain.StrategyFallback},
		}

	case meta.ImageOnlyFraction > 0.5 || meta.ScannedHint:
		return domain.StrategyPlan{
			Primary:       domain.StrategyOCR,
			FallbackChain: []domain.Strategy{domain.StrategyFallback},
		}

	default:
		return domain.StrategyPlan{
			Primary:       domain.StrategyFallback,
			FallbackChain: nil,
			LowConfidence: true,
		}
	}
}
