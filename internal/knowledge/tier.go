// Package knowledge assigns retrieved content to knowledge tiers that
// control how it is sectioned and weighted during context assembly.
package knowledge

import (
	"strings"

	"github.com/complyassist/backend/pkg/config"
)

// Tier labels content by its governance standing. Ordering matters:
// internal authoritative material outranks external reference material,
// which outranks general organizational context.
type Tier string

const (
	TierInternalSecure    Tier = "INTERNAL_SECURE"
	TierExternalAwareness Tier = "EXTERNAL_AWARENESS"
	TierOrgContext        Tier = "ORGANIZATIONAL_CONTEXT"
)

// Rank returns the tier's priority, lower is more authoritative.
func (t Tier) Rank() int {
	switch t {
	case TierInternalSecure:
		return 0
	case TierExternalAwareness:
		return 1
	default:
		return 2
	}
}

type Classifier struct {
	internalSecure    []string
	externalAwareness []string
}

func NewClassifier(cfg config.TierConfig) *Classifier {
	return &Classifier{
		internalSecure:    lowerAll(cfg.InternalSecureKeywords),
		externalAwareness: lowerAll(cfg.ExternalAwarenessKeywords),
	}
}

// Classify checks the tier keyword lists in priority order against the
// document title and chunk tags. The first tier with a match wins, so a
// chunk matching both internal and external markers lands in
// INTERNAL_SECURE. Anything unmatched is organizational context.
func (c *Classifier) Classify(documentTitle string, tags []string) Tier {
	haystack := strings.ToLower(documentTitle)
	for _, tag := range tags {
		haystack += " " + strings.ToLower(tag)
	}

	if matchesAny(haystack, c.internalSecure) {
		return TierInternalSecure
	}
	if matchesAny(haystack, c.externalAwareness) {
		return TierExternalAwareness
	}
	return TierOrgContext
}

func matchesAny(haystack string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
