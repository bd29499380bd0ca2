// Package exam glues the store, the media layout and the notification
// pipeline into the operations the application shell exposes.
package exam

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"examdesk/internal/media"
	"examdesk/internal/notify"
	"examdesk/internal/storage"
	"examdesk/pkg/logx"
)

// SaveResult reports one "save response and notify" submission. The local
// save is unconditional: by the time DeliveryError is populated the response
// row and audio file already exist and are never rolled back.
type SaveResult struct {
	ResponseID int64          `json:"response_id"`
	AudioPath  string         `json:"audio_path"`
	Delivery   notify.Outcome `json:"delivery"`
	// DeliveryError enumerates which recipients failed and why
	// ("" when every recipient was reached).
	DeliveryError string `json:"delivery_error,omitempty"`
}

type Service struct {
	store *storage.Store
	files media.Files
	orch  *notify.Orchestrator
	log   logx.Logger

	now func() time.Time
}

func NewService(store *storage.Store, files media.Files, orch *notify.Orchestrator, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, files: files, orch: orch, log: log, now: time.Now}
}

// SaveResponse durably persists a captured response, then best-effort
// notifies every configured recipient. Persistence failures abort before
// fan-out ever starts; fan-out failures are reported in the result, never
// as an error, since the save already succeeded.
func (s *Service) SaveResponse(ctx context.Context, attemptID, questionID int64, audioData []byte, duration int) (SaveResult, error) {
	rc, err := s.store.ResponseDeliveryContext(ctx, attemptID, questionID)
	if err != nil {
		return SaveResult{}, err
	}

	dir, err := s.files.ResponseDir(s.now(), rc.StudentName)
	if err != nil {
		return SaveResult{}, err
	}
	audioPath := filepath.Join(dir, fmt.Sprintf("q%d.webm", questionID))
	if err := os.WriteFile(audioPath, audioData, 0o644); err != nil {
		return SaveResult{}, err
	}

	responseID, err := s.store.InsertResponse(ctx, attemptID, questionID, audioPath, duration)
	if err != nil {
		return SaveResult{}, err
	}

	s.log.Info("response saved",
		logx.Int64("response_id", responseID),
		logx.Int64("attempt_id", attemptID),
		logx.Int64("question_id", questionID),
		logx.String("path", audioPath))

	result := SaveResult{ResponseID: responseID, AudioPath: audioPath}

	outcome, notifyErr := s.orch.NotifyAll(ctx, notify.ResponseInfo{
		StudentName:  rc.StudentName,
		QuestionID:   questionID,
		Part:         rc.Part,
		SubPart:      rc.SubPart,
		QuestionText: rc.Text,
		ImageRef:     rc.ImagePath,
		Duration:     duration,
		AudioPath:    audioPath,
	})
	result.Delivery = outcome

	if notifyErr != nil {
		var agg *notify.AggregateError
		switch {
		case errors.As(notifyErr, &agg):
			result.DeliveryError = fmt.Sprintf(
				"response saved locally but failed to send to Telegram for %d chat(s): %s",
				len(agg.Failures), agg.Error())
		default:
			// NotConfigured (or resolution failure): nothing was attempted.
			result.DeliveryError = "response saved locally but not delivered: " + notifyErr.Error()
		}
	}
	return result, nil
}
