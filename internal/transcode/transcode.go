// Package transcode converts captured audio to MP3 with an external ffmpeg
// binary. Conversion is best-effort: callers fall back to sending the
// original file when it fails.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"examdesk/internal/media"
	"examdesk/pkg/logx"
)

var (
	// ErrSourceMissing means the file to convert does not exist.
	ErrSourceMissing = errors.New("transcode: source file does not exist")
	// ErrToolUnavailable means ffmpeg is not installed or not on PATH.
	ErrToolUnavailable = errors.New("transcode: ffmpeg is not installed or not available in PATH")
	// ErrConversionFailed means ffmpeg ran but produced no usable output.
	ErrConversionFailed = errors.New("transcode: conversion failed")
)

// ConvertError wraps ErrConversionFailed with the tool detail.
type ConvertError struct {
	Detail string
}

func (e *ConvertError) Error() string { return "transcode: " + e.Detail }
func (e *ConvertError) Unwrap() error { return ErrConversionFailed }

// Converter is the capability-checked adapter contract. Available and ToMP3
// are separate steps so tests can substitute an always-unavailable or
// always-failing implementation.
type Converter interface {
	// Available probes the external tool with a cheap version invocation.
	Available(ctx context.Context) bool
	// ToMP3 converts src and returns the path of a temporary MP3 file.
	// The caller owns the temporary file and must delete it after use.
	ToMP3(ctx context.Context, src string) (string, error)
}

// FFmpeg shells out to the ffmpeg binary.
type FFmpeg struct {
	// Path to the binary; "ffmpeg" resolves via PATH.
	Path string
}

func New(path string) FFmpeg {
	if strings.TrimSpace(path) == "" {
		path = "ffmpeg"
	}
	return FFmpeg{Path: path}
}

func (f FFmpeg) Available(ctx context.Context) bool {
	return exec.CommandContext(ctx, f.Path, "-version").Run() == nil
}

func (f FFmpeg) ToMP3(ctx context.Context, src string) (string, error) {
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("%w: %s", ErrSourceMissing, src)
	}
	if !f.Available(ctx) {
		return "", ErrToolUnavailable
	}

	out := TempOutputPath(src)

	cmd := exec.CommandContext(ctx, f.Path,
		"-y", "-i", src, "-vn", "-codec:a", "libmp3lame", "-q:a", "2", out)
	if err := cmd.Run(); err != nil {
		return "", &ConvertError{Detail: fmt.Sprintf("ffmpeg failed to convert %s: %v", filepath.Base(src), err)}
	}
	if _, err := os.Stat(out); err != nil {
		return "", &ConvertError{Detail: "conversion finished but output file was not created"}
	}
	return out, nil
}

// TempOutputPath builds a randomized temp path from the source stem. The
// random component keeps concurrent submissions from clobbering each other;
// it is the only cross-submission collision guard the pipeline relies on.
func TempOutputPath(src string) string {
	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	if stem == "" {
		stem = "response"
	}
	return filepath.Join(os.TempDir(),
		fmt.Sprintf("%s_%s_telegram.mp3", stem, media.RandSuffix(8)))
}

// Cleanup removes a temporary conversion artifact. An already-absent file is
// fine; any other failure is logged, never propagated.
func Cleanup(path string, log logx.Logger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("failed to delete temporary MP3 file",
			logx.String("path", path), logx.Err(err))
	}
}
