package state

import (
	"context"
	"fmt"

	"github.com/wesheets/roundtable/pkg/models"
)

// SaveThread persists a conversation thread under its id.
func (db *DB) SaveThread(ctx context.Context, thread *models.ConversationThread) error {
	if thread == nil || thread.ThreadID == "" {
		return fmt.Errorf("%w: thread missing id", models.ErrInvalidRequest)
	}
	return SetJSON(ctx, db, ThreadCollection, thread.ThreadID, thread)
}

// LoadThread loads a conversation thread by id.
func (db *DB) LoadThread(ctx context.Context, id string) (*models.ConversationThread, error) {
	var thread models.ConversationThread
	if err := GetJSON(ctx, db, ThreadCollection, id, &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// ListThreads loads every persisted thread, ordered by id.
func (db *DB) ListThreads(ctx context.Context) ([]*models.ConversationThread, error) {
	ids, err := db.Keys(ctx, ThreadCollection)
	if err != nil {
		return nil, err
	}
	threads := make([]*models.ConversationThread, 0, len(ids))
	for _, id := range ids {
		thread, err := db.LoadThread(ctx, id)
		if err != nil {
			return nil, err
		}
		threads = append(threads, thread)
	}
	return threads, nil
}
