package exam

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"examdesk/internal/media"
	"examdesk/internal/notify"
	"examdesk/internal/recipients"
	"examdesk/internal/storage"
	"examdesk/pkg/logx"
)

type fakeSender struct {
	sent      []string // "kind:chat"
	failChats map[string]error
}

func (f *fakeSender) record(kind, chatID string) error {
	f.sent = append(f.sent, kind+":"+chatID)
	return f.failChats[chatID]
}

func (f *fakeSender) SendMessage(_ context.Context, chatID, _ string) error {
	return f.record("message", chatID)
}

func (f *fakeSender) SendPhoto(_ context.Context, chatID, _, _ string) error {
	return f.record("photo", chatID)
}

func (f *fakeSender) SendDocument(_ context.Context, chatID, _, _ string) error {
	return f.record("document", chatID)
}

// passthroughConverter skips the MP3 step entirely so no ffmpeg is needed.
type passthroughConverter struct{}

func (passthroughConverter) Available(context.Context) bool { return false }

func (passthroughConverter) ToMP3(context.Context, string) (string, error) {
	return "", errors.New("conversion unavailable")
}

type staticResolver struct {
	chats []string
	err   error
}

func (s staticResolver) Resolve(context.Context) ([]string, error) { return s.chats, s.err }

type fixture struct {
	svc        *Service
	store      *storage.Store
	sender     *fakeSender
	dataDir    string
	attemptID  int64
	questionID int64
}

func newFixture(t *testing.T, resolver notify.Resolver) *fixture {
	t.Helper()
	dataDir := t.TempDir()

	store, err := storage.Open(storage.Config{Path: filepath.Join(dataDir, "exam.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	attemptID, err := store.CreateAttempt(ctx, "Hana Kim")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	questionID, err := store.AddQuestion(ctx, storage.Question{Part: 2, Text: "Describe your hometown."})
	if err != nil {
		t.Fatalf("AddQuestion: %v", err)
	}

	files := media.Files{DataDir: dataDir}
	sender := &fakeSender{}
	dispatcher := notify.NewDispatcher(sender, passthroughConverter{}, logx.Nop())
	orch := notify.NewOrchestrator(resolver, dispatcher, files.ImagesDir(), logx.Nop())

	svc := NewService(store, files, orch, logx.Nop())
	svc.now = func() time.Time { return time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC) }

	return &fixture{
		svc:        svc,
		store:      store,
		sender:     sender,
		dataDir:    dataDir,
		attemptID:  attemptID,
		questionID: questionID,
	}
}

func TestSaveResponsePersistsAndDelivers(t *testing.T) {
	t.Parallel()
	f := newFixture(t, staticResolver{chats: []string{"100"}})

	res, err := f.svc.SaveResponse(context.Background(), f.attemptID, f.questionID, []byte("audio-bytes"), 40)
	if err != nil {
		t.Fatalf("SaveResponse: %v", err)
	}
	if res.DeliveryError != "" {
		t.Fatalf("DeliveryError = %q", res.DeliveryError)
	}

	wantPath := filepath.Join(f.dataDir, "responses", "2026-03-09", "Hana_Kim",
		fmt.Sprintf("q%d.webm", f.questionID))
	if res.AudioPath != wantPath {
		t.Fatalf("AudioPath = %q, want %q", res.AudioPath, wantPath)
	}
	data, err := os.ReadFile(res.AudioPath)
	if err != nil || string(data) != "audio-bytes" {
		t.Fatalf("saved audio = %q, %v", data, err)
	}

	stored, err := f.store.ResponseAudioPath(context.Background(), res.ResponseID)
	if err != nil || stored != wantPath {
		t.Fatalf("stored path = %q, %v", stored, err)
	}
	if len(res.Delivery.Delivered) != 1 || res.Delivery.Delivered[0] != "100" {
		t.Fatalf("delivered = %v", res.Delivery.Delivered)
	}
}

func TestSaveResponseSurvivesDeliveryFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, staticResolver{chats: []string{"A", "B"}})
	f.sender.failChats = map[string]error{"B": errors.New("chat not found")}

	res, err := f.svc.SaveResponse(context.Background(), f.attemptID, f.questionID, []byte("x"), 10)
	if err != nil {
		t.Fatalf("delivery failure must not fail the save: %v", err)
	}
	if !strings.Contains(res.DeliveryError, "failed to send to Telegram for 1 chat(s)") {
		t.Fatalf("DeliveryError = %q", res.DeliveryError)
	}
	if !strings.Contains(res.DeliveryError, "B (chat not found)") {
		t.Fatalf("DeliveryError should name the failing chat: %q", res.DeliveryError)
	}
	if _, err := os.Stat(res.AudioPath); err != nil {
		t.Fatalf("audio file missing after delivery failure: %v", err)
	}
	if len(res.Delivery.Delivered) != 1 || res.Delivery.Delivered[0] != "A" {
		t.Fatalf("delivered = %v", res.Delivery.Delivered)
	}
}

func TestSaveResponseWithoutRecipients(t *testing.T) {
	t.Parallel()
	f := newFixture(t, staticResolver{err: recipients.ErrNotConfigured})

	res, err := f.svc.SaveResponse(context.Background(), f.attemptID, f.questionID, []byte("x"), 10)
	if err != nil {
		t.Fatalf("SaveResponse: %v", err)
	}
	if !strings.Contains(res.DeliveryError, "not delivered") {
		t.Fatalf("DeliveryError = %q", res.DeliveryError)
	}
	if len(f.sender.sent) != 0 {
		t.Fatalf("nothing should be sent: %v", f.sender.sent)
	}
}

func TestSaveResponseUnknownQuestion(t *testing.T) {
	t.Parallel()
	f := newFixture(t, staticResolver{chats: []string{"100"}})

	_, err := f.svc.SaveResponse(context.Background(), f.attemptID, f.questionID+999, []byte("x"), 10)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want storage.ErrNotFound", err)
	}
	if len(f.sender.sent) != 0 {
		t.Fatalf("nothing should be sent for a failed save: %v", f.sender.sent)
	}
}
