package ingestion

import (
	"regexp"
	"strings"
)

// itemReferencePattern matches numbered practice-statement references such
// as "MPS 7" or "MPS-12".
var itemReferencePattern = regexp.MustCompile(`(?i)\bMPS[\s-]?(\d{1,3})\b`)

// equipmentTerms are operational equipment and system keywords worth
// surfacing as structured chunk tags for retrieval filtering.
var equipmentTerms = []string{
	"scada", "plc", "hmi", "firewall", "vpn", "badge reader", "cctv",
	"generator", "ups", "hvac", "turbine", "substation", "relay",
	"sensor", "gateway", "historian",
}

// detectTags extracts item references and equipment terms from chunk text.
func detectTags(content string) []string {
	var tags []string
	seen := make(map[string]struct{})

	add := func(tag string) {
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	for _, m := range itemReferencePattern.FindAllStringSubmatch(content, -1) {
		add("MPS " + m[1])
	}

	lower := strings.ToLower(content)
	for _, term := range equipmentTerms {
		if strings.Contains(lower, term) {
			add(term)
		}
	}

	return tags
}
