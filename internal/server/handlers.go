package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"examdesk/internal/media"
	"examdesk/internal/recipients"
	"examdesk/internal/storage"
	"examdesk/pkg/logx"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// --- Attempts ---

type createAttemptReq struct {
	StudentName string `json:"student_name"`
}

// POST /api/attempts
func (h *Handler) CreateAttempt(w http.ResponseWriter, r *http.Request) {
	var req createAttemptReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	id, err := h.store.CreateAttempt(r.Context(), req.StudentName)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// GET /api/attempts
func (h *Handler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.store.ListAttempts(r.Context())
	if err != nil {
		h.internalError(w, "list attempts", err)
		return
	}
	if attempts == nil {
		attempts = []storage.Attempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

// POST /api/attempts/{id}/finish
func (h *Handler) FinishAttempt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, "invalid attempt id", http.StatusBadRequest)
		return
	}
	if err := h.store.FinishAttempt(r.Context(), id); err != nil {
		h.internalError(w, "finish attempt", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/attempts/{id}
func (h *Handler) DeleteAttempt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, "invalid attempt id", http.StatusBadRequest)
		return
	}
	if err := h.store.DeleteAttempt(r.Context(), id); err != nil {
		h.internalError(w, "delete attempt", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Questions ---

// POST /api/questions
func (h *Handler) AddQuestion(w http.ResponseWriter, r *http.Request) {
	var q storage.Question
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	id, err := h.store.AddQuestion(r.Context(), q)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// GET /api/questions
func (h *Handler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.store.ListQuestions(r.Context())
	if err != nil {
		h.internalError(w, "list questions", err)
		return
	}
	if questions == nil {
		questions = []storage.Question{}
	}
	writeJSON(w, http.StatusOK, questions)
}

// GET /api/questions/random?part=1&count=3&sub_part=2&exclude=4,7
func (h *Handler) RandomQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	part, err := strconv.Atoi(q.Get("part"))
	if err != nil {
		jsonError(w, "part is required", http.StatusBadRequest)
		return
	}
	count, err := strconv.Atoi(q.Get("count"))
	if err != nil || count <= 0 {
		count = 1
	}
	var subPart *int
	if raw := q.Get("sub_part"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			jsonError(w, "invalid sub_part", http.StatusBadRequest)
			return
		}
		subPart = &v
	}
	var exclude []int64
	if raw := strings.TrimSpace(q.Get("exclude")); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				jsonError(w, "invalid exclude list", http.StatusBadRequest)
				return
			}
			exclude = append(exclude, id)
		}
	}

	questions, err := h.store.RandomQuestions(r.Context(), part, count, exclude, subPart)
	if err != nil {
		h.internalError(w, "random questions", err)
		return
	}
	if questions == nil {
		questions = []storage.Question{}
	}
	writeJSON(w, http.StatusOK, questions)
}

// DELETE /api/questions/{id}
func (h *Handler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, "invalid question id", http.StatusBadRequest)
		return
	}
	if err := h.store.DeactivateQuestion(r.Context(), id); err != nil {
		h.internalError(w, "deactivate question", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Responses ---

type saveResponseReq struct {
	AttemptID  int64  `json:"attempt_id"`
	QuestionID int64  `json:"question_id"`
	Duration   int    `json:"duration"`
	AudioData  string `json:"audio_data"` // base64
}

// POST /api/responses
//
// The save is durable before delivery starts: a delivery failure is reported
// in the response body, never as an HTTP error.
func (h *Handler) SaveResponse(w http.ResponseWriter, r *http.Request) {
	var req saveResponseReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	audio, err := base64.StdEncoding.DecodeString(req.AudioData)
	if err != nil {
		jsonError(w, "audio_data is not valid base64", http.StatusBadRequest)
		return
	}

	result, err := h.svc.SaveResponse(r.Context(), req.AttemptID, req.QuestionID, audio, req.Duration)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			jsonError(w, "attempt or question not found", http.StatusNotFound)
			return
		}
		h.internalError(w, "save response", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// GET /api/responses/{id}/audio
func (h *Handler) ResponseAudio(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, "invalid response id", http.StatusBadRequest)
		return
	}
	path, err := h.store.ResponseAudioPath(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		jsonError(w, "response not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.internalError(w, "response audio", err)
		return
	}
	w.Header().Set("Content-Type", media.GuessMIME(path))
	http.ServeFile(w, r, path)
}

// DELETE /api/responses/{id}
func (h *Handler) DeleteResponse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, "invalid response id", http.StatusBadRequest)
		return
	}
	if err := h.store.DeleteResponse(r.Context(), id); err != nil {
		h.internalError(w, "delete response", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /api/responses/{id}/rating
func (h *Handler) RateResponse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, "invalid response id", http.StatusBadRequest)
		return
	}
	var rating storage.Rating
	if err := json.NewDecoder(r.Body).Decode(&rating); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	rating.ResponseID = id
	if err := h.store.RateResponse(r.Context(), rating); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/recordings
func (h *Handler) ListRecordings(w http.ResponseWriter, r *http.Request) {
	recordings, err := h.store.ListRecordings(r.Context())
	if err != nil {
		h.internalError(w, "list recordings", err)
		return
	}
	if recordings == nil {
		recordings = []storage.Recording{}
	}
	writeJSON(w, http.StatusOK, recordings)
}

// --- Recipient settings ---

type recipientsBody struct {
	ChatIDs []string `json:"chat_ids"`
}

// GET /api/settings/recipients
func (h *Handler) GetRecipients(w http.ResponseWriter, r *http.Request) {
	ids, err := h.registry.Resolve(r.Context())
	if errors.Is(err, recipients.ErrNotConfigured) {
		writeJSON(w, http.StatusOK, recipientsBody{ChatIDs: []string{}})
		return
	}
	if err != nil {
		h.internalError(w, "resolve recipients", err)
		return
	}
	writeJSON(w, http.StatusOK, recipientsBody{ChatIDs: ids})
}

// PUT /api/settings/recipients
func (h *Handler) SetRecipients(w http.ResponseWriter, r *http.Request) {
	var req recipientsBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	saved, err := h.registry.Save(r.Context(), req.ChatIDs)
	if err != nil {
		h.internalError(w, "save recipients", err)
		return
	}
	writeJSON(w, http.StatusOK, recipientsBody{ChatIDs: saved})
}

// --- Media blobs ---

type saveBlobReq struct {
	Filename string `json:"filename"`
	Data     string `json:"data"` // base64
}

func (h *Handler) saveBlob(w http.ResponseWriter, r *http.Request, save func(string, []byte) (string, error)) {
	var req saveBlobReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		jsonError(w, "data is not valid base64", http.StatusBadRequest)
		return
	}
	name, err := save(req.Filename, data)
	if err != nil {
		if errors.Is(err, media.ErrInvalidName) {
			jsonError(w, "invalid filename", http.StatusBadRequest)
			return
		}
		h.internalError(w, "save blob", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"filename": name})
}

// POST /api/media/audio
func (h *Handler) SaveAudio(w http.ResponseWriter, r *http.Request) {
	h.saveBlob(w, r, h.files.SaveAudio)
}

// POST /api/media/images
func (h *Handler) SaveImage(w http.ResponseWriter, r *http.Request) {
	h.saveBlob(w, r, h.files.SaveImage)
}

// GET /api/media/audio/{name}
func (h *Handler) GetAudio(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	data, err := h.files.ReadAudio(name)
	if err != nil {
		jsonError(w, "audio file not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", media.GuessMIME(name))
	_, _ = w.Write(data)
}

// GET /api/media/images/{name}
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	data, err := h.files.ReadImage(name)
	if err != nil {
		jsonError(w, "image file not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", media.GuessMIME(name))
	_, _ = w.Write(data)
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.log.Error(op+" failed", logx.Err(err))
	jsonError(w, "internal error", http.StatusInternalServerError)
}
