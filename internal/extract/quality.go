package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/complyassist/backend/internal/storage/models"
)

// Quality gate thresholds. Governance and training material tolerate noisier
// text because rejecting it loses reviewer-curated content; emergency mode
// bypasses the gate entirely.
const (
	standardMinLength = 120
	relaxedMinLength  = 30

	standardMaxBinaryRatio = 0.10
	relaxedMaxBinaryRatio  = 0.30

	standardMaxMarkupRatio = 0.15
	relaxedMaxMarkupRatio  = 0.40
)

// QualityVerdict reports whether extracted text is usable and why not.
type QualityVerdict struct {
	Acceptable bool
	Reason     string
}

// CheckQuality rejects text that is excessively binary, markup-ridden, or
// too short, with relaxed thresholds for governance/training kinds. In
// emergency mode everything passes.
func CheckQuality(text string, kind models.DocumentKind, emergency bool) QualityVerdict {
	if emergency {
		return QualityVerdict{Acceptable: true}
	}

	relaxed := kind == models.KindGovernance || kind == models.KindTrainingSlide

	minLength := standardMinLength
	maxBinary := standardMaxBinaryRatio
	maxMarkup := standardMaxMarkupRatio
	if relaxed {
		minLength = relaxedMinLength
		maxBinary = relaxedMaxBinaryRatio
		maxMarkup = relaxedMaxMarkupRatio
	}

	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < minLength {
		return QualityVerdict{Reason: "extracted text too short"}
	}

	if binaryRatio(trimmed) > maxBinary {
		return QualityVerdict{Reason: "extracted text is excessively binary"}
	}

	if markupRatio(trimmed) > maxMarkup {
		return QualityVerdict{Reason: "extracted text contains markup artifacts"}
	}

	return QualityVerdict{Acceptable: true}
}

func binaryRatio(text string) float64 {
	if len(text) == 0 {
		return 0
	}

	var suspect int
	var total int
	for _, r := range text {
		total++
		if r == unicode.ReplacementChar || (!unicode.IsPrint(r) && r != '\n' && r != '\t') {
			suspect++
		}
	}
	return float64(suspect) / float64(total)
}

func markupRatio(text string) float64 {
	if len(text) == 0 {
		return 0
	}

	var markup int
	for _, r := range text {
		switch r {
		case '<', '>', '{', '}', ';', '\\':
			markup++
		}
	}
	return float64(markup) / float64(len(text))
}
