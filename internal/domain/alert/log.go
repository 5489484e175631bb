package alert

import (
	"context"
	"fmt"
	"sync"
)

// Log is the clinician notification feed shared by all patients. Entries
// are kept newest first.
type Log struct {
	mu   sync.Mutex
	repo LogRepository
}

func NewLog(repo LogRepository) *Log {
	return &Log{repo: repo}
}

// Prepend puts n at the head of the log and persists the whole log.
func (l *Log) Prepend(ctx context.Context, n Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	items, err := l.repo.Load(ctx)
	if err != nil {
		return err
	}
	next := make([]Notification, 0, len(items)+1)
	next = append(next, n)
	next = append(next, items...)
	return l.repo.Save(ctx, next)
}

// List returns a page of the log, optionally restricted to one patient,
// together with the total number of matching entries.
func (l *Log) List(ctx context.Context, patientID string, limit, offset int) ([]Notification, int, error) {
	items, err := l.repo.Load(ctx)
	if err != nil {
		return nil, 0, err
	}
	if patientID != "" {
		filtered := items[:0:0]
		for _, n := range items {
			if n.PatientID == patientID {
				filtered = append(filtered, n)
			}
		}
		items = filtered
	}

	total := len(items)
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return items[offset:end], total, nil
}

// Unread counts notifications the clinician has not yet opened.
func (l *Log) Unread(ctx context.Context) (int, error) {
	items, err := l.repo.Load(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range items {
		if !item.Read {
			n++
		}
	}
	return n, nil
}

// MarkRead flags the notification as read. It is the only mutation a
// notification ever receives.
func (l *Log) MarkRead(ctx context.Context, id string) (Notification, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	items, err := l.repo.Load(ctx)
	if err != nil {
		return Notification{}, err
	}
	for i := range items {
		if items[i].ID != id {
			continue
		}
		if items[i].Read {
			return items[i], nil
		}
		items[i].Read = true
		if err := l.repo.Save(ctx, items); err != nil {
			return Notification{}, fmt.Errorf("mark %s read: %w", id, err)
		}
		return items[i], nil
	}
	return Notification{}, ErrNotificationNotFound
}
