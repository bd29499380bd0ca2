package transcode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"examdesk/pkg/logx"
)

func TestToMP3SourceMissing(t *testing.T) {
	t.Parallel()
	f := New("ffmpeg")
	_, err := f.ToMP3(context.Background(), filepath.Join(t.TempDir(), "nope.webm"))
	if !errors.Is(err, ErrSourceMissing) {
		t.Fatalf("expected ErrSourceMissing, got %v", err)
	}
}

func TestToMP3ToolUnavailable(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "rec.webm")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := New(filepath.Join(t.TempDir(), "no-such-ffmpeg"))
	if f.Available(context.Background()) {
		t.Fatal("expected probe to fail for a missing binary")
	}
	_, err := f.ToMP3(context.Background(), src)
	if !errors.Is(err, ErrToolUnavailable) {
		t.Fatalf("expected ErrToolUnavailable, got %v", err)
	}
}

func TestConvertErrorUnwraps(t *testing.T) {
	t.Parallel()
	err := error(&ConvertError{Detail: "boom"})
	if !errors.Is(err, ErrConversionFailed) {
		t.Fatal("ConvertError must unwrap to ErrConversionFailed")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("detail lost: %v", err)
	}
}

func TestTempOutputPath(t *testing.T) {
	t.Parallel()
	p1 := TempOutputPath("/data/responses/q42.webm")
	p2 := TempOutputPath("/data/responses/q42.webm")

	base := filepath.Base(p1)
	if !strings.HasPrefix(base, "q42_") || !strings.HasSuffix(base, "_telegram.mp3") {
		t.Fatalf("unexpected temp name %q", base)
	}
	if p1 == p2 {
		t.Fatal("temp names must be randomized per call")
	}
	if filepath.Dir(p1) != os.TempDir() {
		t.Fatalf("temp file must live under the process temp dir, got %q", p1)
	}
}

func TestCleanupTolerant(t *testing.T) {
	t.Parallel()

	// An existing file is removed.
	path := filepath.Join(t.TempDir(), "tmp.mp3")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	Cleanup(path, logx.Nop())
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("expected file to be removed")
	}

	// Absent files and empty paths are not errors.
	Cleanup(path, logx.Nop())
	Cleanup("", logx.Nop())
}
