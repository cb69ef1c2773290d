package ingestion

import (
	"strings"
	"testing"
)

func testChunker() *Chunker {
	return NewChunker(2000, 200, 120, 30)
}

func TestSplitShortTextBelowMinimum(t *testing.T) {
	chunks := testChunker().Split("too small", false)
	if chunks != nil {
		t.Fatalf("expected nil for sub-minimum text, got %d chunks", len(chunks))
	}
}

func TestSplitEmergencyLowersMinimum(t *testing.T) {
	text := strings.Repeat("x", 50)

	if got := testChunker().Split(text, false); got != nil {
		t.Fatalf("standard mode should reject 50 chars, got %d chunks", len(got))
	}

	chunks := testChunker().Split(text, true)
	if len(chunks) != 1 {
		t.Fatalf("emergency mode should yield one chunk, got %d", len(chunks))
	}
}

func TestSplitLongTextOverlaps(t *testing.T) {
	// Roughly a 3000-word document.
	text := strings.TrimSpace(strings.Repeat("compliance evidence retention schedule review ", 400))

	chunks := testChunker().Split(text, false)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d has index %d", i, ch.Index)
		}
		if len(ch.Content) > 2000 {
			t.Errorf("chunk %d exceeds window: %d chars", i, len(ch.Content))
		}
		if ch.ContentHash == "" {
			t.Errorf("chunk %d missing content hash", i)
		}
		if ch.TokenCount == 0 {
			t.Errorf("chunk %d has zero token count", i)
		}
	}

	// Consecutive windows share the trailing overlap region.
	first := chunks[0].Content
	second := chunks[1].Content
	tail := first[len(first)-100:]
	if !strings.Contains(second, tail[:50]) {
		t.Error("second chunk does not overlap with first")
	}
}

func TestSplitSkipsTailFragment(t *testing.T) {
	c := NewChunker(100, 10, 30, 10)

	// 115 chars: one full window plus a 25 char tail below the minimum,
	// already covered by the previous window's overlap.
	text := strings.Repeat("a", 115)

	chunks := c.Split(text, false)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want tail fragment dropped", len(chunks))
	}
}

func TestSyntheticFallback(t *testing.T) {
	chunk := testChunker().SyntheticFallback("Vendor SOC2 Report", "extracted text too short")

	if chunk.Index != 0 {
		t.Errorf("index = %d, want 0", chunk.Index)
	}
	if !strings.Contains(chunk.Content, "Vendor SOC2 Report") {
		t.Errorf("fallback should name the document: %q", chunk.Content)
	}
	if chunk.Metadata["synthetic_fallback"] != true {
		t.Error("missing synthetic_fallback marker")
	}
	if chunk.Metadata["fallback_reason"] != "extracted text too short" {
		t.Errorf("fallback_reason = %v", chunk.Metadata["fallback_reason"])
	}
}

func TestDetectTags(t *testing.T) {
	content := "Per MPS 7 and mps-12, the SCADA historian and firewall logs are reviewed. MPS 7 is covered twice."

	tags := detectTags(content)

	want := map[string]bool{"MPS 7": false, "MPS 12": false, "scada": false, "historian": false, "firewall": false}
	for _, tag := range tags {
		if _, ok := want[tag]; ok {
			want[tag] = true
		}
	}
	for tag, found := range want {
		if !found {
			t.Errorf("tag %q not detected in %v", tag, tags)
		}
	}

	seen := map[string]int{}
	for _, tag := range tags {
		seen[tag]++
		if seen[tag] > 1 {
			t.Errorf("tag %q duplicated", tag)
		}
	}
}
