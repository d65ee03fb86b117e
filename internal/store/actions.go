package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/braid/internal/model"
)

// CreateAction persists an invalidation action and returns it with its
// generated id. An empty Type means ActionShell. Command is required.
func (s *Store) CreateAction(ctx context.Context, sess *Session, action model.InvalidationAction) (model.InvalidationAction, error) {
	if action.Type == "" {
		action.Type = model.ActionShell
	}
	if action.Command == "" {
		return model.InvalidationAction{}, model.NewInvalidArgument("action command must not be empty")
	}
	if action.Params == nil {
		action.Params = model.Object{}
	}
	if _, err := action.Args(); err != nil {
		return model.InvalidationAction{}, err
	}

	params, err := model.MarshalCanonical(action.Params)
	if err != nil {
		return model.InvalidationAction{}, model.NewInvalidArgument(fmt.Sprintf("action params: %v", err))
	}

	action.ID = s.ids.Generate()
	err = s.within(ctx, sess, "create action", func(q querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO invalidation_actions (id, name, action_type, command, params)
			VALUES (?, ?, ?, ?, ?)
		`, action.ID, action.Name, string(action.Type), action.Command, string(params))
		if err != nil {
			return classify("create action", err)
		}
		return nil
	})
	if err != nil {
		return model.InvalidationAction{}, err
	}
	return action, nil
}

// GetAction retrieves an action by id.
func (s *Store) GetAction(ctx context.Context, sess *Session, id string) (action model.InvalidationAction, found bool, err error) {
	err = s.within(ctx, sess, "get action", func(q querier) error {
		row := q.QueryRowContext(ctx, `
			SELECT id, name, action_type, command, params
			FROM invalidation_actions
			WHERE id = ?
		`, id)
		a, scanErr := scanAction(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return nil
		}
		if scanErr != nil {
			return model.NewStorageError("get action", scanErr)
		}
		action, found = a, true
		return nil
	})
	return action, found, err
}

// ListActions returns every action ordered by name, then id.
func (s *Store) ListActions(ctx context.Context, sess *Session) ([]model.InvalidationAction, error) {
	actions := []model.InvalidationAction{}
	err := s.within(ctx, sess, "list actions", func(q querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT id, name, action_type, command, params
			FROM invalidation_actions
			ORDER BY name ASC, id ASC
		`)
		if err != nil {
			return model.NewStorageError("list actions", err)
		}
		defer rows.Close()

		for rows.Next() {
			a, err := scanAction(rows)
			if err != nil {
				return model.NewStorageError("scan action", err)
			}
			actions = append(actions, a)
		}
		if err := rows.Err(); err != nil {
			return model.NewStorageError("iterate actions", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return actions, nil
}

// SetRecordAction binds an action to a record, replacing any previous one.
// An empty actionID clears the binding.
func (s *Store) SetRecordAction(ctx context.Context, sess *Session, recordID int64, actionID string) (model.Record, error) {
	var rec model.Record
	err := s.within(ctx, sess, "set record action", func(q querier) error {
		if _, err := requireRecord(ctx, q, recordID, "record"); err != nil {
			return err
		}
		if actionID != "" {
			var exists int
			err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM invalidation_actions WHERE id = ?`, actionID).Scan(&exists)
			if err != nil {
				return model.NewStorageError("set record action", err)
			}
			if exists == 0 {
				return model.NewReferentialError(fmt.Sprintf("action %s does not exist", actionID), nil)
			}
		}
		if _, err := q.ExecContext(ctx, `
			UPDATE records SET invalidation_action_id = ? WHERE id = ?
		`, nullString(actionID), recordID); err != nil {
			return classify("set record action", err)
		}
		var err error
		rec, err = requireRecord(ctx, q, recordID, "record")
		return err
	})
	if err != nil {
		return model.Record{}, err
	}
	return rec, nil
}

func scanAction(sc scanner) (model.InvalidationAction, error) {
	var a model.InvalidationAction
	var typ, params string
	if err := sc.Scan(&a.ID, &a.Name, &typ, &a.Command, &params); err != nil {
		return model.InvalidationAction{}, err
	}
	a.Type = model.ActionType(typ)

	a.Params = model.Object{}
	if params != "" {
		if err := a.Params.UnmarshalJSON([]byte(params)); err != nil {
			return model.InvalidationAction{}, fmt.Errorf("action %s params: %w", a.ID, err)
		}
	}
	return a, nil
}
