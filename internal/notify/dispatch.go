package notify

import (
	"context"
	"os"

	"examdesk/internal/transcode"
	"examdesk/pkg/logx"
)

// Sender is the outbound transport surface the dispatcher needs. The
// Telegram client implements it.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
	SendPhoto(ctx context.Context, chatID, imagePath, caption string) error
	SendDocument(ctx context.Context, chatID, filePath, caption string) error
}

// Dispatcher delivers one composed payload to one recipient. Each step must
// succeed before the next; the first hard failure aborts the remaining steps
// for that recipient.
type Dispatcher struct {
	sender Sender
	conv   transcode.Converter
	log    logx.Logger
}

func NewDispatcher(sender Sender, conv transcode.Converter, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{sender: sender, conv: conv, log: log}
}

// Deliver runs the three payload steps: summary text, optional prompt image,
// answer recording. Transcoding failure is soft: the original recording is
// sent instead and the reason is returned as a warning.
func (d *Dispatcher) Deliver(ctx context.Context, recipient string, p Payload) ([]string, error) {
	if err := d.sender.SendMessage(ctx, recipient, p.Summary); err != nil {
		return nil, err
	}

	if p.ImagePath != "" && fileExists(p.ImagePath) {
		if err := d.sender.SendPhoto(ctx, recipient, p.ImagePath, p.ImageCaption); err != nil {
			return nil, err
		}
	}

	mp3Path, convErr := d.conv.ToMP3(ctx, p.AudioPath)
	if convErr == nil {
		// Scoped acquisition: the temp file is deleted whether or not the
		// send succeeds, and the send's own result is what propagates.
		sendErr := d.sender.SendDocument(ctx, recipient, mp3Path, p.MP3Caption)
		transcode.Cleanup(mp3Path, d.log)
		return nil, sendErr
	}

	d.log.Warn("MP3 conversion failed, sending original recording",
		logx.String("recipient", recipient), logx.Err(convErr))
	warning := "MP3 conversion failed, original recording sent instead: " + convErr.Error()

	if err := d.sender.SendDocument(ctx, recipient, p.AudioPath, p.FallbackCaption); err != nil {
		return []string{warning}, err
	}
	return []string{warning}, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
