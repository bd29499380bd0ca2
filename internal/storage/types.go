package storage

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("storage: not found")
)

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

type Attempt struct {
	ID          int64   `json:"id"`
	StudentName string  `json:"student_name"`
	StartedAt   string  `json:"started_at"`
	FinishedAt  *string `json:"finished_at"`
}

type Question struct {
	ID           int64  `json:"id"`
	Part         int    `json:"part"`
	SubPart      int    `json:"sub_part"`
	AudioPath    string `json:"audio_path"`
	ImagePath    string `json:"image_path"`
	Text         string `json:"text"`
	PackID       string `json:"pack_id"`
	PackOrder    int    `json:"pack_order"`
	ResponseTime int    `json:"response_time"`
	Active       bool   `json:"active"`
}

type Response struct {
	ID         int64  `json:"id"`
	AttemptID  int64  `json:"attempt_id"`
	QuestionID int64  `json:"question_id"`
	AudioPath  string `json:"audio_path"`
	Duration   int    `json:"duration"`
	RecordedAt string `json:"recorded_at"`
}

// Recording is the joined review view over responses, attempts and questions.
type Recording struct {
	ID               int64  `json:"id"`
	AttemptID        int64  `json:"attempt_id"`
	StudentName      string `json:"student_name"`
	AttemptStartedAt string `json:"attempt_started_at"`
	QuestionID       int64  `json:"question_id"`
	Part             int    `json:"part"`
	SubPart          int    `json:"sub_part"`
	QuestionText     string `json:"question_text"`
	RecordedAt       string `json:"recorded_at"`
	Duration         int    `json:"duration"`
}

type Rating struct {
	ResponseID    int64  `json:"response_id"`
	Fluency       int    `json:"fluency"`
	Lexical       int    `json:"lexical"`
	Grammar       int    `json:"grammar"`
	Pronunciation int    `json:"pronunciation"`
	Comment       string `json:"comment"`
}

// ResponseContext is what the delivery pipeline needs to announce one
// captured response: the owning attempt's student plus the question's
// section and prompt data.
type ResponseContext struct {
	StudentName string
	Part        int
	SubPart     int
	Text        string
	ImagePath   string
}
