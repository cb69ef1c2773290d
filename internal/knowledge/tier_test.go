package knowledge

import (
	"testing"

	"github.com/complyassist/backend/pkg/config"
)

func testClassifier() *Classifier {
	return NewClassifier(config.TierConfig{
		InternalSecureKeywords:    []string{"audit", "criteria", "scoring"},
		ExternalAwarenessKeywords: []string{"threat", "advisory", "cve"},
	})
}

func TestClassify(t *testing.T) {
	c := testClassifier()

	tests := []struct {
		name  string
		title string
		tags  []string
		want  Tier
	}{
		{"internal keyword in title", "Internal Audit Criteria 2026", nil, TierInternalSecure},
		{"external keyword in title", "Quarterly Threat Briefing", nil, TierExternalAwareness},
		{"keyword in tags", "Untitled", []string{"CVE"}, TierExternalAwareness},
		{"no match is org context", "Office Seating Plan", nil, TierOrgContext},
		{"case insensitive", "SCORING methodology", nil, TierInternalSecure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.title, tt.tags); got != tt.want {
				t.Errorf("Classify(%q, %v) = %s, want %s", tt.title, tt.tags, got, tt.want)
			}
		})
	}
}

func TestClassifyPriorityOrder(t *testing.T) {
	c := testClassifier()

	// A document matching both lists must land in the higher tier.
	got := c.Classify("Audit of threat advisory handling", nil)
	if got != TierInternalSecure {
		t.Errorf("Classify() = %s, want %s when both tiers match", got, TierInternalSecure)
	}
}

func TestTierRank(t *testing.T) {
	if !(TierInternalSecure.Rank() < TierExternalAwareness.Rank() && TierExternalAwareness.Rank() < TierOrgContext.Rank()) {
		t.Error("tier ranks out of order")
	}
}
