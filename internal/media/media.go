// Package media owns filesystem layout and naming for audio and image blobs.
package media

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrInvalidName means the requested filename has no usable file-name
	// component (empty, "." or separators only).
	ErrInvalidName = errors.New("media: invalid filename")
	// ErrAllocExhausted means no collision-free candidate was found within
	// the attempt budget.
	ErrAllocExhausted = errors.New("media: failed to generate unique filename")
)

const (
	uniqueAttempts  = 50
	suffixLen       = 6
	suffixAlphabet  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	responseDateFmt = "2006-01-02"
)

// UniqueName returns a file name under dir that does not collide with an
// existing file. The requested name is returned unchanged when free;
// otherwise candidates get a random alphanumeric suffix between stem and
// extension. This is collision avoidance, not a uniqueness guarantee:
// concurrent allocators can still race between the existence check and the
// write, and the write itself is the arbiter.
func UniqueName(dir, requested string) (string, error) {
	base := filepath.Base(strings.TrimSpace(requested))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "", ErrInvalidName
	}

	if !exists(filepath.Join(dir, base)) {
		return base, nil
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem = "file"
	}

	for i := 0; i < uniqueAttempts; i++ {
		candidate := fmt.Sprintf("%s_%s%s", stem, randSuffix(suffixLen), ext)
		if !exists(filepath.Join(dir, candidate)) {
			return candidate, nil
		}
	}
	return "", ErrAllocExhausted
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// RandSuffix is exported for the transcoder's temp-file naming.
func RandSuffix(n int) string { return randSuffix(n) }

func randSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = suffixAlphabet[rand.Intn(len(suffixAlphabet))]
	}
	return string(b)
}

// Files manages the on-disk layout under the data directory:
//
//	<data>/audio/      uploaded prompt audio
//	<data>/images/     uploaded prompt images
//	<data>/responses/{date}/{student}/   captured responses
type Files struct {
	DataDir string
}

func (f Files) AudioDir() string  { return filepath.Join(f.DataDir, "audio") }
func (f Files) ImagesDir() string { return filepath.Join(f.DataDir, "images") }

// SaveAudio stores an uploaded audio blob under the audio dir with a
// collision-free name and returns the stored name.
func (f Files) SaveAudio(filename string, data []byte) (string, error) {
	return f.saveBlob(f.AudioDir(), filename, data)
}

// SaveImage stores an uploaded image blob under the images dir.
func (f Files) SaveImage(filename string, data []byte) (string, error) {
	return f.saveBlob(f.ImagesDir(), filename, data)
}

func (f Files) saveBlob(dir, filename string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name, err := UniqueName(dir, filename)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", err
	}
	return name, nil
}

// ReadAudio looks the file up in the audio dir first, then in bundled
// instruction-sound locations so packaged prompts resolve too.
func (f Files) ReadAudio(filename string) ([]byte, error) {
	candidates := []string{
		filepath.Join(f.AudioDir(), filename),
		filepath.Join(f.DataDir, "instruction_sounds", filename),
		filepath.Join("instruction_sounds", filename),
	}
	var lastErr error
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = os.ErrNotExist
	}
	return nil, fmt.Errorf("read audio file %s: %w", filename, lastErr)
}

func (f Files) ReadImage(filename string) ([]byte, error) {
	return os.ReadFile(filepath.Join(f.ImagesDir(), filename))
}

// ResponseDir returns (and creates) the directory for one student's
// responses captured on the given day.
func (f Files) ResponseDir(now time.Time, studentName string) (string, error) {
	dir := filepath.Join(f.DataDir, "responses",
		now.Format(responseDateFmt), SanitizeName(studentName))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// SanitizeName makes a student name safe as a path component.
func SanitizeName(name string) string {
	r := strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_")
	return r.Replace(name)
}

// GuessMIME maps a file extension to a MIME type for multipart uploads.
func GuessMIME(path string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	case "mp3":
		return "audio/mpeg"
	case "m4a":
		return "audio/mp4"
	case "ogg":
		return "audio/ogg"
	case "wav":
		return "audio/wav"
	case "webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}
