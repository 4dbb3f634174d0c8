package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wesheets/roundtable/pkg/models"
)

// SaveMessage upserts a message. The full message is stored as JSON;
// routing fields are mirrored into columns so channels and threads can
// be listed without decoding every payload. The router re-saves after
// delivery updates, so the row always reflects the latest delivery
// state.
func (db *DB) SaveMessage(ctx context.Context, msg *models.AgentMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", msg.ID, err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO messages (id, channel_id, from_agent, message_type, priority, task_id, thread_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET payload = excluded.payload
	`,
		msg.ID,
		msg.ChannelID,
		msg.FromAgent,
		string(msg.Content.MessageType),
		string(msg.Content.Priority),
		msg.Context.TaskID,
		msg.Context.ConversationThread,
		payload,
		formatTime(msg.Delivery.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("save message %s: %w", msg.ID, err)
	}
	return nil
}

// Message loads a message by id.
func (db *DB) Message(ctx context.Context, id string) (*models.AgentMessage, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var payload []byte
	row := db.conn.QueryRowContext(ctx, "SELECT payload FROM messages WHERE id = ?", id)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: message %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("load message %s: %w", id, err)
	}
	return decodeMessage(payload)
}

// MessagesByChannel returns a channel's messages in send order.
func (db *DB) MessagesByChannel(ctx context.Context, channelID string) ([]*models.AgentMessage, error) {
	return db.queryMessages(ctx, "SELECT payload FROM messages WHERE channel_id = ? ORDER BY created_at, id", channelID)
}

// MessagesByThread returns a conversation thread's messages in send order.
func (db *DB) MessagesByThread(ctx context.Context, threadID string) ([]*models.AgentMessage, error) {
	return db.queryMessages(ctx, "SELECT payload FROM messages WHERE thread_id = ? ORDER BY created_at, id", threadID)
}

// MessagesByTask returns a task's messages in send order.
func (db *DB) MessagesByTask(ctx context.Context, taskID string) ([]*models.AgentMessage, error) {
	return db.queryMessages(ctx, "SELECT payload FROM messages WHERE task_id = ? ORDER BY created_at, id", taskID)
}

func (db *DB) queryMessages(ctx context.Context, query string, args ...any) ([]*models.AgentMessage, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.AgentMessage
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg, err := decodeMessage(payload)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func decodeMessage(payload []byte) (*models.AgentMessage, error) {
	var msg models.AgentMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}

// SaveResponse upserts an agent response.
func (db *DB) SaveResponse(ctx context.Context, resp *models.AgentResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response %s: %w", resp.ID, err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO responses (id, message_id, from_agent, response_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET payload = excluded.payload
	`,
		resp.ID,
		resp.OriginalMessageID,
		resp.FromAgent,
		string(resp.ResponseType),
		payload,
		formatTime(resp.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save response %s: %w", resp.ID, err)
	}
	return nil
}

// ResponsesByMessage returns the responses to a message in arrival order.
func (db *DB) ResponsesByMessage(ctx context.Context, messageID string) ([]*models.AgentResponse, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx,
		"SELECT payload FROM responses WHERE message_id = ? ORDER BY created_at, id", messageID)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()

	var responses []*models.AgentResponse
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		var resp models.AgentResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		responses = append(responses, &resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate responses: %w", err)
	}
	return responses, nil
}
