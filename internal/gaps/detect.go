package gaps

import (
	"regexp"
	"strings"
)

// A category pairs the question-side markers that ask for a kind of
// specific with the answer-side evidence that would satisfy it. A gap in
// that category exists when the prompt asks and the answer has no evidence.
type category struct {
	name     string
	asks     []string
	evidence *regexp.Regexp
}

var categories = []category{
	{
		name:     "responsible_owners",
		asks:     []string{"who is responsible", "who owns", "responsible for", "accountable", "point of contact", "who manages"},
		evidence: regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+\b|\b(?i:director|manager|officer|lead|coordinator) of\b`),
	},
	{
		name:     "thresholds",
		asks:     []string{"threshold", "limit", "how many", "how much", "what percentage", "tolerance", "maximum", "minimum"},
		evidence: regexp.MustCompile(`\b\d+(\.\d+)?\s*(%|percent|days?|hours?|minutes?|mb|gb|usd|dollars?)\b`),
	},
	{
		name:     "named_systems",
		asks:     []string{"which system", "what tool", "what software", "which platform", "what application"},
		evidence: regexp.MustCompile(`\b[A-Z][A-Za-z]*(?:[A-Z][a-z]+)+\b|\b(?:v|version )\d+(\.\d+)*\b`),
	},
	{
		name:     "cadences",
		asks:     []string{"how often", "frequency", "schedule", "cadence", "review cycle", "when is"},
		evidence: regexp.MustCompile(`(?i)\b(daily|weekly|biweekly|monthly|quarterly|annually|every \d+)\b`),
	},
	{
		name:     "jurisdictions",
		asks:     []string{"jurisdiction", "which regions", "which countries", "what states", "regulatory scope"},
		evidence: regexp.MustCompile(`(?i)\b(united states|european union|eu|uk|canada|california|gdpr|state of [a-z]+)\b`),
	},
	{
		name:     "site_procedures",
		asks:     []string{"site procedure", "at each site", "facility procedure", "on-site", "per location", "plant procedure"},
		evidence: regexp.MustCompile(`(?i)\b(site|facility|plant|location)[- ](specific|procedure|manual|checklist)\b`),
	},
}

// hedgePhrases signal an answer that gestures at specifics without
// providing them. Their presence makes any asked category a gap even when
// the evidence regex technically matches.
var hedgePhrases = []string{
	"appropriate personnel",
	"as needed",
	"established protocols",
	"relevant stakeholders",
	"designated individuals",
	"in accordance with policy",
	"applicable procedures",
}

// Detect returns the categories of specifics the prompt asks for that the
// answer fails to deliver.
func Detect(prompt, answer string) []string {
	lowerPrompt := strings.ToLower(prompt)
	lowerAnswer := strings.ToLower(answer)

	hedged := false
	for _, phrase := range hedgePhrases {
		if strings.Contains(lowerAnswer, phrase) {
			hedged = true
			break
		}
	}

	var missing []string
	for _, cat := range categories {
		if !asksFor(lowerPrompt, cat.asks) {
			continue
		}
		if hedged || !cat.evidence.MatchString(answer) {
			missing = append(missing, cat.name)
		}
	}
	return missing
}

func asksFor(lowerPrompt string, asks []string) bool {
	for _, marker := range asks {
		if strings.Contains(lowerPrompt, marker) {
			return true
		}
	}
	return false
}
