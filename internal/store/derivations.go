package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/braid/internal/model"
)

// AddDerivation records that successor was derived from predecessor.
//
// Both records must exist (REFERENTIAL_ERROR otherwise). A Fact successor is
// rejected with UNSUPPORTED_OPERATION. Adding an existing pair again is a
// no-op that returns the original edge. Cycles are not rejected here; the
// invalidation engine detects them when cascading.
func (s *Store) AddDerivation(ctx context.Context, sess *Session, predecessorID, successorID int64) (model.Derivation, error) {
	edge := model.Derivation{
		PredecessorID: predecessorID,
		SuccessorID:   successorID,
		CreatedAt:     s.now(),
	}

	err := s.within(ctx, sess, "add derivation", func(q querier) error {
		if _, err := requireRecord(ctx, q, predecessorID, "predecessor"); err != nil {
			return err
		}
		successor, err := requireRecord(ctx, q, successorID, "successor")
		if err != nil {
			return err
		}
		if !successor.Kind.AcceptsPredecessors() {
			return model.NewUnsupportedOperation(fmt.Sprintf("facts cannot be derived from other records (record %d)", successorID))
		}

		_, err = q.ExecContext(ctx, `
			INSERT INTO derivations (predecessor_id, successor_id, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT(predecessor_id, successor_id) DO NOTHING
		`, predecessorID, successorID, edge.CreatedAt.UnixNano())
		if err != nil {
			return classify("add derivation", err)
		}

		// Re-read so an existing edge reports its original timestamp
		var createdAt int64
		err = q.QueryRowContext(ctx, `
			SELECT created_at FROM derivations
			WHERE predecessor_id = ? AND successor_id = ?
		`, predecessorID, successorID).Scan(&createdAt)
		if err != nil {
			return model.NewStorageError("add derivation: read back", err)
		}
		edge.CreatedAt = time.Unix(0, createdAt).UTC()
		return nil
	})
	if err != nil {
		return model.Derivation{}, err
	}
	return edge, nil
}

// Successors returns the records directly derived from recordID, ordered by id.
func (s *Store) Successors(ctx context.Context, sess *Session, recordID int64) ([]model.Record, error) {
	var records []model.Record
	err := s.within(ctx, sess, "read successors", func(q querier) error {
		var err error
		records, err = successors(ctx, q, recordID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func successors(ctx context.Context, q querier, recordID int64) ([]model.Record, error) {
	return queryRecords(ctx, q, "read successors", `
		SELECT `+recordColumns("r")+`
		FROM derivations d
		JOIN records r ON r.id = d.successor_id
		WHERE d.predecessor_id = ?
		ORDER BY r.id ASC
	`, recordID)
}

// Predecessors returns the records recordID was directly derived from,
// ordered by id.
func (s *Store) Predecessors(ctx context.Context, sess *Session, recordID int64) ([]model.Record, error) {
	var records []model.Record
	err := s.within(ctx, sess, "read predecessors", func(q querier) error {
		var err error
		records, err = queryRecords(ctx, q, "read predecessors", `
			SELECT `+recordColumns("r")+`
			FROM derivations d
			JOIN records r ON r.id = d.predecessor_id
			WHERE d.successor_id = ?
			ORDER BY r.id ASC
		`, recordID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListDerivations returns every edge ordered by (predecessor, successor).
func (s *Store) ListDerivations(ctx context.Context, sess *Session) ([]model.Derivation, error) {
	edges := []model.Derivation{}
	err := s.within(ctx, sess, "list derivations", func(q querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT predecessor_id, successor_id, created_at
			FROM derivations
			ORDER BY predecessor_id ASC, successor_id ASC
		`)
		if err != nil {
			return model.NewStorageError("list derivations", err)
		}
		defer rows.Close()

		for rows.Next() {
			var e model.Derivation
			var createdAt int64
			if err := rows.Scan(&e.PredecessorID, &e.SuccessorID, &createdAt); err != nil {
				return model.NewStorageError("scan derivation", err)
			}
			e.CreatedAt = time.Unix(0, createdAt).UTC()
			edges = append(edges, e)
		}
		if err := rows.Err(); err != nil {
			return model.NewStorageError("iterate derivations", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}
