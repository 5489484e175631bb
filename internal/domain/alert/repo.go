package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/momcare/pregnancy-tracker/internal/platform/kv"
)

var ErrNotificationNotFound = errors.New("notification not found")

// LogRepository loads and saves the whole notification log.
type LogRepository interface {
	Load(ctx context.Context) ([]Notification, error)
	Save(ctx context.Context, items []Notification) error
}

// LogKey holds the JSON array of clinician notifications, newest first.
const LogKey = "clinician_notifications"

type logRepoKV struct{ store kv.Store }

func NewLogRepoKV(store kv.Store) LogRepository { return &logRepoKV{store: store} }

func (r *logRepoKV) Load(ctx context.Context) ([]Notification, error) {
	raw, err := kv.Get(ctx, r.store, LogKey)
	if errors.Is(err, kv.ErrNotFound) {
		return []Notification{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load notification log: %w", err)
	}
	var items []Notification
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode notification log: %w", err)
	}
	return items, nil
}

func (r *logRepoKV) Save(ctx context.Context, items []Notification) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode notification log: %w", err)
	}
	if err := kv.Put(ctx, r.store, LogKey, raw); err != nil {
		return fmt.Errorf("save notification log: %w", err)
	}
	return nil
}
