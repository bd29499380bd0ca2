// Package telegram is a minimal Bot API client for the three outbound calls
// the delivery pipeline needs: sendMessage, sendPhoto and sendDocument.
//
// Every response is decoded as the uniform {ok, description} envelope.
// Transport failures, non-2xx statuses, unparsable bodies and ok=false all
// normalize to *APIError so callers handle exactly one failure shape.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"examdesk/internal/media"
	"examdesk/pkg/logx"
)

// APIError is the normalized per-call failure.
type APIError struct {
	Endpoint string
	Detail   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %s", e.Endpoint, e.Detail)
}

type apiResponse struct {
	OK          bool    `json:"ok"`
	Description *string `json:"description"`
}

type Config struct {
	Token      string
	APIBase    string // default https://api.telegram.org
	Timeout    time.Duration
	RatePerSec int
}

type Client struct {
	http    *http.Client
	token   string
	base    string
	limiter *rate.Limiter
	log     logx.Logger
}

func NewClient(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	base := strings.TrimSuffix(cfg.APIBase, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		token:   cfg.Token,
		base:    base,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}, nil
}

func (c *Client) endpoint(method string) string {
	return c.base + "/bot" + c.token + "/" + method
}

// SendMessage posts a plain-text message.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &APIError{Endpoint: "sendMessage", Detail: err.Error()}
	}
	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint("sendMessage"), strings.NewReader(form.Encode()))
	if err != nil {
		return &APIError{Endpoint: "sendMessage", Detail: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req, "sendMessage")
}

// SendPhoto posts an image attachment with an optional caption.
func (c *Client) SendPhoto(ctx context.Context, chatID, imagePath, caption string) error {
	return c.sendFile(ctx, "sendPhoto", "photo", chatID, imagePath, caption)
}

// SendDocument posts a file attachment with an optional caption.
func (c *Client) SendDocument(ctx context.Context, chatID, filePath, caption string) error {
	return c.sendFile(ctx, "sendDocument", "document", chatID, filePath, caption)
}

func (c *Client) sendFile(ctx context.Context, endpoint, field, chatID, path, caption string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &APIError{Endpoint: endpoint, Detail: err.Error()}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &APIError{Endpoint: endpoint, Detail: fmt.Sprintf("read %s: %v", field, err)}
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", chatID); err != nil {
		return &APIError{Endpoint: endpoint, Detail: err.Error()}
	}
	if strings.TrimSpace(caption) != "" {
		if err := w.WriteField("caption", caption); err != nil {
			return &APIError{Endpoint: endpoint, Detail: err.Error()}
		}
	}
	part, err := createFilePart(w, field, filepath.Base(path), media.GuessMIME(path))
	if err != nil {
		return &APIError{Endpoint: endpoint, Detail: err.Error()}
	}
	if _, err := part.Write(data); err != nil {
		return &APIError{Endpoint: endpoint, Detail: err.Error()}
	}
	if err := w.Close(); err != nil {
		return &APIError{Endpoint: endpoint, Detail: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(endpoint), &body)
	if err != nil {
		return &APIError{Endpoint: endpoint, Detail: err.Error()}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return c.do(req, endpoint)
}

// createFilePart is CreateFormFile with an explicit Content-Type.
func createFilePart(w *multipart.Writer, field, filename, mime string) (io.Writer, error) {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", mime)
	return w.CreatePart(h)
}

func (c *Client) do(req *http.Request, endpoint string) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Endpoint: endpoint, Detail: err.Error()}
	}
	defer resp.Body.Close()

	err = parseEnvelope(resp, endpoint)
	c.log.Debug("telegram call finished",
		logx.String("endpoint", endpoint),
		logx.Duration("took", time.Since(start)),
		logx.Bool("ok", err == nil))
	return err
}

// parseEnvelope normalizes every failure mode into one *APIError.
func parseEnvelope(resp *http.Response, endpoint string) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Endpoint: endpoint, Detail: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Endpoint: endpoint,
			Detail: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &APIError{Endpoint: endpoint,
			Detail: fmt.Sprintf("parse response JSON: %v (body: %s)", err, strings.TrimSpace(string(body)))}
	}

	if !parsed.OK {
		desc := "unknown Telegram error"
		if parsed.Description != nil && *parsed.Description != "" {
			desc = *parsed.Description
		}
		return &APIError{Endpoint: endpoint, Detail: desc}
	}
	return nil
}
