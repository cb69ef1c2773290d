// Package extract converts stored document payloads into plain text plus an
// extraction-method label used for downstream quality gating. Extraction
// never fails outright: every path, including total failure, yields some
// text so the rest of the pipeline always has input.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/complyassist/backend/internal/storage/models"
	"github.com/complyassist/backend/pkg/logger"
)

// Extraction method labels recorded in document and chunk metadata.
const (
	MethodDocxStructured = "docx_structured"
	MethodPptxSlides     = "pptx_slides"
	MethodHTML           = "html"
	MethodPlainText      = "plain_text"
	MethodRawDegraded    = "raw_text_degraded"
	MethodSynthetic      = "synthetic_failure"
)

// Result carries extracted text and provenance for quality gating.
type Result struct {
	Text     string
	Method   string
	Degraded bool
	Metadata map[string]interface{}
}

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Extract dispatches on the document's declared type. Any internal error is
// absorbed into a degraded or synthetic result.
func (e *Extractor) Extract(payload []byte, mediaType, fileName, title string, kind models.DocumentKind) *Result {
	var res *Result

	switch {
	case isWordProcessor(mediaType, fileName):
		res = e.extractDocx(payload)
	case isPresentation(mediaType, fileName):
		res = e.extractPptx(payload)
	case isHTML(mediaType, fileName):
		res = e.extractHTML(payload)
	case isPlainText(mediaType, fileName):
		res = &Result{Text: decodeText(payload), Method: MethodPlainText}
	default:
		// PDF and unknown binary formats get a best-effort raw decode.
		res = &Result{Text: rawDecode(payload), Method: MethodRawDegraded, Degraded: true}
	}

	if res.Metadata == nil {
		res.Metadata = make(map[string]interface{})
	}
	res.Metadata["extraction_method"] = res.Method

	if strings.TrimSpace(res.Text) == "" {
		res.Text = syntheticFailureText(title)
		res.Method = MethodSynthetic
		res.Degraded = true
		res.Metadata["extraction_method"] = MethodSynthetic
		logger.Warn("Extraction produced no text, substituting synthetic description",
			zap.String("file_name", fileName),
		)
	}

	return res
}

func syntheticFailureText(title string) string {
	return fmt.Sprintf("extraction failed for %s: manual review required", title)
}

// zipSignature is the container magic for OOXML office formats.
var zipSignature = []byte{0x50, 0x4b, 0x03, 0x04}

func hasZipSignature(payload []byte) bool {
	return len(payload) >= 4 && bytes.Equal(payload[:4], zipSignature)
}

// docx structural model, the subset of word/document.xml we read.
type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []struct {
		Text []struct {
			Content string `xml:",chardata"`
		} `xml:"t"`
	} `xml:"r"`
}

func (e *Extractor) extractDocx(payload []byte) *Result {
	if !hasZipSignature(payload) {
		logger.Warn("Word document missing container signature, falling back to raw decode")
		return &Result{Text: rawDecode(payload), Method: MethodRawDegraded, Degraded: true}
	}

	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return &Result{Text: rawDecode(payload), Method: MethodRawDegraded, Degraded: true}
	}

	content, err := readZipEntry(reader, "word/document.xml")
	if err != nil {
		return &Result{Text: rawDecode(payload), Method: MethodRawDegraded, Degraded: true}
	}

	var doc docxDocument
	if err := xml.Unmarshal(content, &doc); err != nil {
		return &Result{Text: rawDecode(payload), Method: MethodRawDegraded, Degraded: true}
	}

	var b strings.Builder
	for i, para := range doc.Body.Paragraphs {
		if i > 0 {
			b.WriteString("\n")
		}
		for _, run := range para.Runs {
			for _, t := range run.Text {
				b.WriteString(t.Content)
			}
		}
	}

	return &Result{
		Text:   strings.TrimSpace(b.String()),
		Method: MethodDocxStructured,
	}
}

var slideEntryPattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
var notesEntryPattern = regexp.MustCompile(`^ppt/notesSlides/notesSlide(\d+)\.xml$`)

func (e *Extractor) extractPptx(payload []byte) *Result {
	if !hasZipSignature(payload) {
		return &Result{Text: rawDecode(payload), Method: MethodRawDegraded, Degraded: true}
	}

	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return &Result{Text: rawDecode(payload), Method: MethodRawDegraded, Degraded: true}
	}

	slides := map[int]string{}
	notes := map[int]string{}

	for _, f := range reader.File {
		if m := slideEntryPattern.FindStringSubmatch(f.Name); m != nil {
			if content, err := readZipFile(f); err == nil {
				slides[atoi(m[1])] = slideText(content)
			}
			continue
		}
		if m := notesEntryPattern.FindStringSubmatch(f.Name); m != nil {
			if content, err := readZipFile(f); err == nil {
				notes[atoi(m[1])] = slideText(content)
			}
		}
	}

	if len(slides) == 0 {
		return &Result{Text: rawDecode(payload), Method: MethodRawDegraded, Degraded: true}
	}

	numbers := make([]int, 0, len(slides))
	for n := range slides {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	var b strings.Builder
	for _, n := range numbers {
		fmt.Fprintf(&b, "--- Slide %d ---\n", n)
		b.WriteString(strings.TrimSpace(slides[n]))
		if note := strings.TrimSpace(notes[n]); note != "" {
			b.WriteString("\nSpeaker notes: ")
			b.WriteString(note)
		}
		b.WriteString("\n\n")
	}

	return &Result{
		Text:   strings.TrimSpace(b.String()),
		Method: MethodPptxSlides,
		Metadata: map[string]interface{}{
			"slide_count": len(slides),
		},
	}
}

// slideText pulls the text runs (a:t elements) out of slide markup. A token
// scan avoids modeling the full DrawingML schema.
func slideText(content []byte) string {
	decoder := xml.NewDecoder(bytes.NewReader(content))

	var b strings.Builder
	inText := false

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inText = false
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}

	return b.String()
}

func (e *Extractor) extractHTML(payload []byte) *Result {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return &Result{Text: rawDecode(payload), Method: MethodRawDegraded, Degraded: true}
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	text = regexp.MustCompile(`\s+`).ReplaceAllString(text, " ")

	return &Result{
		Text:   strings.TrimSpace(text),
		Method: MethodHTML,
	}
}

func decodeText(payload []byte) string {
	return strings.TrimSpace(string(payload))
}

// rawDecode strips non-printable bytes from a binary payload, keeping
// whatever readable fragments exist.
func rawDecode(payload []byte) string {
	var b strings.Builder
	b.Grow(len(payload))

	for _, r := range string(payload) {
		if r == utf8ReplacementRune {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\t' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	text := regexp.MustCompile(`[ \t]{2,}`).ReplaceAllString(b.String(), " ")
	return strings.TrimSpace(text)
}

const utf8ReplacementRune = '�'

func readZipEntry(reader *zip.Reader, name string) ([]byte, error) {
	for _, f := range reader.File {
		if f.Name == name {
			return readZipFile(f)
		}
	}
	return nil, fmt.Errorf("entry %s not found", name)
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}
