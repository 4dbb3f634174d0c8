package state

import (
	"context"
	"fmt"

	"github.com/wesheets/roundtable/pkg/models"
)

// SaveDecision persists a consensus decision under its id.
func (db *DB) SaveDecision(ctx context.Context, d *models.ConsensusDecision) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("%w: decision missing id", models.ErrInvalidRequest)
	}
	return SetJSON(ctx, db, DecisionCollection, d.ID, d)
}

// LoadDecision loads a consensus decision by id.
func (db *DB) LoadDecision(ctx context.Context, id string) (*models.ConsensusDecision, error) {
	var d models.ConsensusDecision
	if err := GetJSON(ctx, db, DecisionCollection, id, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDecisions loads every persisted decision, ordered by id.
func (db *DB) ListDecisions(ctx context.Context) ([]*models.ConsensusDecision, error) {
	ids, err := db.Keys(ctx, DecisionCollection)
	if err != nil {
		return nil, err
	}
	decisions := make([]*models.ConsensusDecision, 0, len(ids))
	for _, id := range ids {
		d, err := db.LoadDecision(ctx, id)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}
