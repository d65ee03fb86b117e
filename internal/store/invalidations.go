package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/braid/internal/model"
)

// ErrAlreadyInvalidated is wrapped by STORAGE_ERROR when binding an
// invalidation to a record that already carries one.
var ErrAlreadyInvalidated = errors.New("record is already invalidated")

// CreateInvalidation persists a new invalidation and returns it with its
// generated id.
//
// cause must be non-empty. rootID, when set, must name an existing
// invalidation (REFERENTIAL_ERROR otherwise).
func (s *Store) CreateInvalidation(ctx context.Context, sess *Session, cause, rootID string) (model.Invalidation, error) {
	if cause == "" {
		return model.Invalidation{}, model.NewInvalidArgument("invalidation cause must not be empty")
	}

	inv := model.Invalidation{
		ID:        s.ids.Generate(),
		Cause:     cause,
		RootID:    rootID,
		CreatedAt: time.Unix(0, s.now().UnixNano()).UTC(),
	}

	err := s.within(ctx, sess, "create invalidation", func(q querier) error {
		if rootID != "" {
			if _, found, err := getInvalidation(ctx, q, rootID); err != nil {
				return err
			} else if !found {
				return model.NewReferentialError(fmt.Sprintf("root invalidation %s does not exist", rootID), nil)
			}
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO invalidations (id, cause, root_invalidation_id, created_at)
			VALUES (?, ?, ?, ?)
		`, inv.ID, inv.Cause, nullString(inv.RootID), inv.CreatedAt.UnixNano())
		if err != nil {
			return classify("create invalidation", err)
		}
		return nil
	})
	if err != nil {
		return model.Invalidation{}, err
	}
	return inv, nil
}

// GetInvalidation retrieves an invalidation by id.
func (s *Store) GetInvalidation(ctx context.Context, sess *Session, id string) (inv model.Invalidation, found bool, err error) {
	err = s.within(ctx, sess, "get invalidation", func(q querier) error {
		inv, found, err = getInvalidation(ctx, q, id)
		return err
	})
	return inv, found, err
}

func getInvalidation(ctx context.Context, q querier, id string) (model.Invalidation, bool, error) {
	var inv model.Invalidation
	var rootID sql.NullString
	var createdAt int64

	err := q.QueryRowContext(ctx, `
		SELECT id, cause, root_invalidation_id, created_at
		FROM invalidations
		WHERE id = ?
	`, id).Scan(&inv.ID, &inv.Cause, &rootID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Invalidation{}, false, nil
	}
	if err != nil {
		return model.Invalidation{}, false, model.NewStorageError("get invalidation", err)
	}

	inv.RootID = rootID.String
	inv.CreatedAt = time.Unix(0, createdAt).UTC()
	return inv, true, nil
}

// BindInvalidation marks a record invalid by pointing it at invalidationID
// and returns the updated record.
//
// A record is invalidated at most once: binding a record that already has an
// invalidation fails with STORAGE_ERROR wrapping ErrAlreadyInvalidated. A
// missing record or invalidation is REFERENTIAL_ERROR.
func (s *Store) BindInvalidation(ctx context.Context, sess *Session, recordID int64, invalidationID string) (model.Record, error) {
	var rec model.Record
	err := s.within(ctx, sess, "bind invalidation", func(q querier) error {
		result, err := q.ExecContext(ctx, `
			UPDATE records
			SET invalidation_id = ?
			WHERE id = ? AND invalidation_id IS NULL
		`, invalidationID, recordID)
		if err != nil {
			if isUniqueViolation(err) {
				return model.NewStorageError("bind invalidation: invalidation already bound to another record", err)
			}
			return classify("bind invalidation", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return model.NewStorageError("bind invalidation: rows affected", err)
		}

		current, err := requireRecord(ctx, q, recordID, "record")
		if err != nil {
			return err
		}
		if n == 0 {
			return model.NewStorageError(fmt.Sprintf("bind invalidation to record %d", recordID), ErrAlreadyInvalidated)
		}
		rec = current
		return nil
	})
	if err != nil {
		return model.Record{}, err
	}
	return rec, nil
}

// InvalidationsByRoot returns the invalidations created by the cascade that
// rootID started, ordered by creation time. The root itself is not included.
func (s *Store) InvalidationsByRoot(ctx context.Context, sess *Session, rootID string) ([]model.Invalidation, error) {
	invs := []model.Invalidation{}
	err := s.within(ctx, sess, "invalidations by root", func(q querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT id, cause, root_invalidation_id, created_at
			FROM invalidations
			WHERE root_invalidation_id = ?
			ORDER BY created_at ASC, id ASC
		`, rootID)
		if err != nil {
			return model.NewStorageError("invalidations by root", err)
		}
		defer rows.Close()

		for rows.Next() {
			var inv model.Invalidation
			var root sql.NullString
			var createdAt int64
			if err := rows.Scan(&inv.ID, &inv.Cause, &root, &createdAt); err != nil {
				return model.NewStorageError("scan invalidation", err)
			}
			inv.RootID = root.String
			inv.CreatedAt = time.Unix(0, createdAt).UTC()
			invs = append(invs, inv)
		}
		if err := rows.Err(); err != nil {
			return model.NewStorageError("iterate invalidations", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invs, nil
}

// InvalidatedBy returns every record invalidated by rootID's cascade,
// including the record rootID itself is bound to, ordered by record id.
func (s *Store) InvalidatedBy(ctx context.Context, sess *Session, rootID string) ([]model.Record, error) {
	var records []model.Record
	err := s.within(ctx, sess, "invalidated by", func(q querier) error {
		var err error
		records, err = queryRecords(ctx, q, "invalidated by", `
			SELECT `+recordColumns("r")+`
			FROM records r
			JOIN invalidations i ON i.id = r.invalidation_id
			WHERE i.id = ? OR i.root_invalidation_id = ?
			ORDER BY r.id ASC
		`, rootID, rootID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
