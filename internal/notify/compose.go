package notify

import (
	"fmt"
	"path/filepath"
	"strings"

	"examdesk/pkg/logx"
)

// Telegram transport limits, including the truncation marker.
const (
	maxMessageLen = 4096
	maxCaptionLen = 1024
)

const noQuestionText = "(No question text provided)"

// ResponseInfo is the read-only view of a locally saved response that the
// pipeline announces. It is assembled by the caller from the store.
type ResponseInfo struct {
	StudentName  string
	QuestionID   int64
	Part         int
	SubPart      int
	QuestionText string
	// ImageRef is the question's configured image reference; it may be
	// absolute or relative to the images directory, and may be blank.
	ImageRef string
	Duration int
	// AudioPath is the absolute path of the saved recording.
	AudioPath string
}

// Payload holds the three per-recipient messages. It is ephemeral: built
// fresh for each delivery attempt and never persisted.
type Payload struct {
	Summary string
	// ImagePath is the resolved, existing prompt image ("" when none).
	ImagePath    string
	ImageCaption string
	AudioPath    string
	MP3Caption   string
	// FallbackCaption labels the original-format recording when MP3
	// conversion failed.
	FallbackCaption string
}

// Compose builds the notification payload for one response. A configured but
// missing prompt image degrades to a warning instead of failing composition.
func Compose(info ResponseInfo, imagesDir string, log logx.Logger) (Payload, []string) {
	var warnings []string

	label := sectionLabel(info.Part, info.SubPart)
	question := strings.TrimSpace(info.QuestionText)
	if question == "" {
		question = noQuestionText
	}

	summary := fmt.Sprintf(
		"New CEFR speaking response\nStudent: %s\nSection: %s\nQuestion ID: %d\nQuestion: %s\nDuration: %ds",
		info.StudentName, label, info.QuestionID, question, info.Duration)

	p := Payload{
		Summary:   truncate(summary, maxMessageLen),
		AudioPath: info.AudioPath,
		MP3Caption: truncate(fmt.Sprintf(
			"Answer recording (MP3) | %s | Question %d | Student %s",
			label, info.QuestionID, info.StudentName), maxCaptionLen),
		FallbackCaption: truncate(fmt.Sprintf(
			"Answer recording (original format) | %s | Question %d | Student %s",
			label, info.QuestionID, info.StudentName), maxCaptionLen),
	}

	if resolved, ok := resolveImage(imagesDir, info.ImageRef); ok {
		p.ImagePath = resolved
		p.ImageCaption = truncate(fmt.Sprintf(
			"Prompt image for %s (Question %d)", label, info.QuestionID), maxCaptionLen)
	} else if strings.TrimSpace(info.ImageRef) != "" {
		w := fmt.Sprintf("image configured for question %d but not found at %s",
			info.QuestionID, resolved)
		log.Warn("prompt image missing", logx.Int64("question_id", info.QuestionID),
			logx.String("path", resolved))
		warnings = append(warnings, w)
	}

	return p, warnings
}

// sectionLabel renders the part/sub-part pair. Only Part 1 has named
// sub-sections; everything else ignores the sub-part.
func sectionLabel(part, subPart int) string {
	if part == 1 && (subPart == 1 || subPart == 2) {
		return fmt.Sprintf("Part 1.%d", subPart)
	}
	return fmt.Sprintf("Part %d", part)
}

// resolveImage turns a configured image reference into an absolute path.
// Absolute inputs pass through; relative inputs resolve under imagesDir.
// ok is true only when the resolved file exists.
func resolveImage(imagesDir, ref string) (string, bool) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return "", false
	}
	path := trimmed
	if !filepath.IsAbs(path) {
		path = filepath.Join(imagesDir, trimmed)
	}
	return path, fileExists(path)
}

// truncate caps s at max runes, marking the cut with a trailing "...".
// The result never exceeds max runes, marker included.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
