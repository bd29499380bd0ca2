package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"examdesk/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "exam.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "exam.db")

	s1, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	ctx := context.Background()
	if _, err := s1.CreateAttempt(ctx, "Alice"); err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Re-running migrations against an existing database must not fail or
	// lose data.
	s2, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()

	attempts, err := s2.ListAttempts(ctx)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].StudentName != "Alice" {
		t.Fatalf("attempts = %+v", attempts)
	}
}

func TestAttemptLifecycle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateAttempt(ctx, "  "); err == nil {
		t.Fatal("blank student name must be rejected")
	}

	id, err := s.CreateAttempt(ctx, "Bob")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	attempts, err := s.ListAttempts(ctx)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].ID != id || attempts[0].FinishedAt != nil {
		t.Fatalf("attempts = %+v", attempts)
	}

	if err := s.FinishAttempt(ctx, id); err != nil {
		t.Fatalf("FinishAttempt: %v", err)
	}
	attempts, err = s.ListAttempts(ctx)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if attempts[0].FinishedAt == nil || *attempts[0].FinishedAt == "" {
		t.Fatalf("finished_at not set: %+v", attempts[0])
	}
}

func TestAddQuestionValidation(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		q       Question
		wantErr string
	}{
		{
			name:    "part 1.2 needs an image",
			q:       Question{Part: 1, SubPart: 2, PackID: "p1", PackOrder: 1},
			wantErr: "image is required for Part 1.2",
		},
		{
			name:    "part 3 needs an image",
			q:       Question{Part: 3, Text: "ignored"},
			wantErr: "image is required for Part 3",
		},
		{
			name:    "part 1.1 needs a pack",
			q:       Question{Part: 1, SubPart: 1, Text: "hi"},
			wantErr: "test pack ID is required",
		},
		{
			name:    "part 1.1 needs a positive order",
			q:       Question{Part: 1, SubPart: 1, Text: "hi", PackID: "p1"},
			wantErr: "question order is required",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddQuestion(ctx, tt.q)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestAddQuestionDropsPart3Text(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.AddQuestion(ctx, Question{Part: 3, ImagePath: "p3.png", Text: "should vanish"})
	if err != nil {
		t.Fatalf("AddQuestion: %v", err)
	}
	qs, err := s.ListQuestions(ctx)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(qs) != 1 || qs[0].ID != id || qs[0].Text != "" {
		t.Fatalf("questions = %+v", qs)
	}
}

func TestDeactivateQuestionHidesFromList(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.AddQuestion(ctx, Question{Part: 2, Text: "talk about travel"})
	if err != nil {
		t.Fatalf("AddQuestion: %v", err)
	}
	if err := s.DeactivateQuestion(ctx, id); err != nil {
		t.Fatalf("DeactivateQuestion: %v", err)
	}
	qs, err := s.ListQuestions(ctx)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(qs) != 0 {
		t.Fatalf("deactivated question still listed: %+v", qs)
	}
}

func TestRandomQuestionsPackSelection(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	// One pack with two questions, inserted out of order.
	for _, q := range []Question{
		{Part: 1, SubPart: 1, Text: "second", PackID: "setA", PackOrder: 2},
		{Part: 1, SubPart: 1, Text: "first", PackID: "setA", PackOrder: 1},
	} {
		if _, err := s.AddQuestion(ctx, q); err != nil {
			t.Fatalf("AddQuestion: %v", err)
		}
	}

	sub := 1
	qs, err := s.RandomQuestions(ctx, 1, 1, nil, &sub)
	if err != nil {
		t.Fatalf("RandomQuestions: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("pack must be returned whole, got %d questions", len(qs))
	}
	if qs[0].Text != "first" || qs[1].Text != "second" {
		t.Fatalf("pack order not respected: %+v", qs)
	}
}

func TestRandomQuestionsExclusions(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	var ids []int64
	for _, text := range []string{"a", "b", "c"} {
		id, err := s.AddQuestion(ctx, Question{Part: 2, Text: text})
		if err != nil {
			t.Fatalf("AddQuestion: %v", err)
		}
		ids = append(ids, id)
	}

	qs, err := s.RandomQuestions(ctx, 2, 5, []int64{ids[0], ids[1]}, nil)
	if err != nil {
		t.Fatalf("RandomQuestions: %v", err)
	}
	if len(qs) != 1 || qs[0].ID != ids[2] {
		t.Fatalf("exclusions ignored: %+v", qs)
	}
}

func TestResponseDeliveryContext(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	attemptID, err := s.CreateAttempt(ctx, "Carol")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	questionID, err := s.AddQuestion(ctx, Question{Part: 1, SubPart: 2, Text: "describe", ImagePath: "pic.png", PackID: "p", PackOrder: 1})
	if err != nil {
		t.Fatalf("AddQuestion: %v", err)
	}

	rc, err := s.ResponseDeliveryContext(ctx, attemptID, questionID)
	if err != nil {
		t.Fatalf("ResponseDeliveryContext: %v", err)
	}
	want := ResponseContext{StudentName: "Carol", Part: 1, SubPart: 2, Text: "describe", ImagePath: "pic.png"}
	if rc != want {
		t.Fatalf("context = %+v, want %+v", rc, want)
	}

	if _, err := s.ResponseDeliveryContext(ctx, attemptID, questionID+999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown question: err = %v, want ErrNotFound", err)
	}
	if _, err := s.ResponseDeliveryContext(ctx, attemptID+999, questionID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown attempt: err = %v, want ErrNotFound", err)
	}
}

func TestDeleteAttemptCascade(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	attemptID, err := s.CreateAttempt(ctx, "Dave")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	questionID, err := s.AddQuestion(ctx, Question{Part: 2, Text: "q"})
	if err != nil {
		t.Fatalf("AddQuestion: %v", err)
	}

	audio := filepath.Join(dir, "q1.webm")
	if err := os.WriteFile(audio, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	respID, err := s.InsertResponse(ctx, attemptID, questionID, audio, 30)
	if err != nil {
		t.Fatalf("InsertResponse: %v", err)
	}
	// A second response whose file is already gone must not break the cascade.
	if _, err := s.InsertResponse(ctx, attemptID, questionID, filepath.Join(dir, "gone.webm"), 10); err != nil {
		t.Fatalf("InsertResponse: %v", err)
	}
	rating := Rating{ResponseID: respID, Fluency: 5, Lexical: 5, Grammar: 5, Pronunciation: 5, Comment: "good"}
	if err := s.RateResponse(ctx, rating); err != nil {
		t.Fatalf("RateResponse: %v", err)
	}

	if err := s.DeleteAttempt(ctx, attemptID); err != nil {
		t.Fatalf("DeleteAttempt: %v", err)
	}
	if _, err := os.Stat(audio); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("audio file survived: %v", err)
	}
	if attempts, _ := s.ListAttempts(ctx); len(attempts) != 0 {
		t.Fatalf("attempt survived: %+v", attempts)
	}
	if _, err := s.ResponseAudioPath(ctx, respID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("response survived: err = %v", err)
	}
}

func TestDeleteResponse(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	attemptID, _ := s.CreateAttempt(ctx, "Eve")
	questionID, _ := s.AddQuestion(ctx, Question{Part: 2, Text: "q"})

	audio := filepath.Join(t.TempDir(), "q.webm")
	if err := os.WriteFile(audio, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	respID, err := s.InsertResponse(ctx, attemptID, questionID, audio, 20)
	if err != nil {
		t.Fatalf("InsertResponse: %v", err)
	}

	if err := s.DeleteResponse(ctx, respID); err != nil {
		t.Fatalf("DeleteResponse: %v", err)
	}
	if _, err := os.Stat(audio); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("audio file survived: %v", err)
	}
	if _, err := s.ResponseAudioPath(ctx, respID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRateResponseUpsert(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	attemptID, _ := s.CreateAttempt(ctx, "Fay")
	questionID, _ := s.AddQuestion(ctx, Question{Part: 2, Text: "q"})
	respID, err := s.InsertResponse(ctx, attemptID, questionID, "", 20)
	if err != nil {
		t.Fatalf("InsertResponse: %v", err)
	}

	first := Rating{ResponseID: respID, Fluency: 3, Lexical: 3, Grammar: 3, Pronunciation: 3}
	if err := s.RateResponse(ctx, first); err != nil {
		t.Fatalf("first RateResponse: %v", err)
	}
	second := Rating{ResponseID: respID, Fluency: 5, Lexical: 5, Grammar: 5, Pronunciation: 5, Comment: "better"}
	if err := s.RateResponse(ctx, second); err != nil {
		t.Fatalf("second RateResponse: %v", err)
	}

	var count, fluency int
	var comment string
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(fluency), MAX(comment) FROM ratings WHERE response_id = ?`, respID).
		Scan(&count, &fluency, &comment)
	if err != nil {
		t.Fatalf("query ratings: %v", err)
	}
	if count != 1 || fluency != 5 || comment != "better" {
		t.Fatalf("rating row = count %d fluency %d comment %q", count, fluency, comment)
	}
}

func TestListRecordings(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	attemptID, _ := s.CreateAttempt(ctx, "Gail")
	questionID, _ := s.AddQuestion(ctx, Question{Part: 2, Text: "favorite book"})
	if _, err := s.InsertResponse(ctx, attemptID, questionID, "", 42); err != nil {
		t.Fatalf("InsertResponse: %v", err)
	}

	recs, err := s.ListRecordings(ctx)
	if err != nil {
		t.Fatalf("ListRecordings: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("recordings = %+v", recs)
	}
	r := recs[0]
	if r.StudentName != "Gail" || r.QuestionText != "favorite book" || r.Duration != 42 || r.Part != 2 {
		t.Fatalf("recording = %+v", r)
	}
}

func TestSettingsUpsert(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Setting(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}

	if err := s.SetSetting(ctx, "telegram_chat_ids", `["1"]`); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.SetSetting(ctx, "telegram_chat_ids", `["1","2"]`); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}

	v, ok, err := s.Setting(ctx, "telegram_chat_ids")
	if err != nil || !ok {
		t.Fatalf("Setting: ok=%v err=%v", ok, err)
	}
	if v != `["1","2"]` {
		t.Fatalf("value = %q", v)
	}
}
