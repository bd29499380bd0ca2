// Package recipients resolves the ordered set of Telegram chat IDs that
// receive response notifications.
//
// Two persisted settings exist for backward compatibility: the canonical
// JSON list under "telegram_chat_ids" and the legacy single-value slot under
// "telegram_chat_id". Both are kept in sync on every save so older readers
// keep working.
package recipients

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
)

const (
	// SettingKeyList is the canonical structured setting (JSON string array).
	SettingKeyList = "telegram_chat_ids"
	// SettingKeyLegacy is the older single-value setting.
	SettingKeyLegacy = "telegram_chat_id"

	envList   = "TELEGRAM_CHAT_IDS"
	envSingle = "TELEGRAM_CHAT_ID"
)

// ErrNotConfigured means no recipients are resolvable from settings or
// environment; fan-out is not attempted at all.
var ErrNotConfigured = errors.New("telegram chat IDs are not configured; add at least one in the admin dashboard")

// Settings is the slice of the settings store the registry needs.
type Settings interface {
	Setting(ctx context.Context, key string) (value string, ok bool, err error)
	SetSetting(ctx context.Context, key, value string) error
}

// Registry resolves and persists the recipient set. It reads fresh on every
// Resolve; recipient changes between submissions are picked up without any
// caching or invalidation.
type Registry struct {
	settings Settings
	env      func(string) string
}

func NewRegistry(settings Settings) *Registry {
	return &Registry{settings: settings, env: os.Getenv}
}

// WithEnv overrides environment lookup (tests).
func (r *Registry) WithEnv(env func(string) string) *Registry {
	cp := *r
	cp.env = env
	return &cp
}

// Normalize trims entries, drops blanks, and removes duplicates keeping the
// first occurrence. Order is otherwise preserved; the first entry is the
// primary recipient.
func Normalize(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Parse accepts either a JSON string array or delimiter-separated text
// (comma, semicolon or newline). Empty input yields an empty set, never an
// error; a malformed JSON array falls back to delimiter splitting.
func Parse(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return []string{}
	}

	if strings.HasPrefix(trimmed, "[") {
		var values []string
		if err := json.Unmarshal([]byte(trimmed), &values); err == nil {
			return Normalize(values)
		}
	}

	values := strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	return Normalize(values)
}

// Resolve returns the configured recipient set. Resolution order, first
// non-empty wins: stored structured list, stored legacy value, environment
// list, environment single value. All empty means ErrNotConfigured.
func (r *Registry) Resolve(ctx context.Context) ([]string, error) {
	for _, key := range []string{SettingKeyList, SettingKeyLegacy} {
		raw, ok, err := r.settings.Setting(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if ids := Parse(raw); len(ids) > 0 {
			return ids, nil
		}
	}

	for _, key := range []string{envList, envSingle} {
		if ids := Parse(r.env(key)); len(ids) > 0 {
			return ids, nil
		}
	}

	return nil, ErrNotConfigured
}

// Save persists ids as the canonical JSON list and mirrors the first entry
// (or empty) into the legacy slot. Returns the normalized set.
func (r *Registry) Save(ctx context.Context, ids []string) ([]string, error) {
	normalized := Normalize(ids)

	serialized, err := json.Marshal(normalized)
	if err != nil {
		return nil, err
	}
	if err := r.settings.SetSetting(ctx, SettingKeyList, string(serialized)); err != nil {
		return nil, err
	}

	primary := ""
	if len(normalized) > 0 {
		primary = normalized[0]
	}
	if err := r.settings.SetSetting(ctx, SettingKeyLegacy, primary); err != nil {
		return nil, err
	}
	return normalized, nil
}
