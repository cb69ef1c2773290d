package extract

import (
	"strings"

	"github.com/complyassist/backend/internal/storage/models"
)

// Classify decides a document's kind once, up front. Extraction, quality
// validation and chunk tagging all consume this single classification
// instead of re-deriving booleans at each stage.
func Classify(title, fileName, mediaType string, governanceFlag bool) models.DocumentKind {
	if governanceFlag {
		return models.KindGovernance
	}

	lower := strings.ToLower(title + " " + fileName)

	if isPresentation(mediaType, fileName) {
		return models.KindTrainingSlide
	}

	for _, marker := range []string{"policy", "charter", "governance", "procedure", "standard operating"} {
		if strings.Contains(lower, marker) {
			return models.KindGovernance
		}
	}

	for _, marker := range []string{"org chart", "organization profile", "org profile", "company overview", "roles and responsibilities"} {
		if strings.Contains(lower, marker) {
			return models.KindOrgProfile
		}
	}

	return models.KindStandard
}

func isPresentation(mediaType, fileName string) bool {
	if strings.Contains(mediaType, "presentationml") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(fileName), ".pptx")
}

func isWordProcessor(mediaType, fileName string) bool {
	if strings.Contains(mediaType, "wordprocessingml") || strings.Contains(mediaType, "msword") {
		return true
	}
	lower := strings.ToLower(fileName)
	return strings.HasSuffix(lower, ".docx") || strings.HasSuffix(lower, ".doc")
}

func isPlainText(mediaType, fileName string) bool {
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	lower := strings.ToLower(fileName)
	for _, ext := range []string{".txt", ".md", ".markdown", ".csv", ".json", ".yaml", ".yml"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func isHTML(mediaType, fileName string) bool {
	if strings.Contains(mediaType, "html") {
		return true
	}
	lower := strings.ToLower(fileName)
	return strings.HasSuffix(lower, ".html") || strings.HasSuffix(lower, ".htm")
}
