package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/braid/internal/model"
)

// recordColumns returns the record column list, optionally qualified by alias.
func recordColumns(alias string) string {
	p := ""
	if alias != "" {
		p = alias + "."
	}
	return fmt.Sprintf("%[1]sid, %[1]sname, %[1]skind, %[1]screated_at, %[1]sinvalidation_id, %[1]sinvalidation_action_id", p)
}

// CreateRecord persists a new record and returns it with its store-assigned id.
//
// An empty Kind means KindRecord; a zero CreatedAt means the store clock.
// A record that already has an id, or that carries an invalidation, is
// rejected with INVALID_ARGUMENT.
func (s *Store) CreateRecord(ctx context.Context, sess *Session, rec model.Record) (model.Record, error) {
	if rec.Persisted() {
		return model.Record{}, model.NewInvalidArgument(fmt.Sprintf("record already persisted with id %d", rec.ID))
	}
	if rec.InvalidationID != "" {
		return model.Record{}, model.NewInvalidArgument("new records cannot carry an invalidation")
	}
	if rec.Kind == "" {
		rec.Kind = model.KindRecord
	}
	if !rec.Kind.Valid() {
		return model.Record{}, model.NewInvalidArgument(fmt.Sprintf("unknown record kind %q", rec.Kind))
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	err := s.within(ctx, sess, "create record", func(q querier) error {
		result, err := q.ExecContext(ctx, `
			INSERT INTO records (name, kind, created_at, invalidation_action_id)
			VALUES (?, ?, ?, ?)
		`,
			rec.Name,
			string(rec.Kind),
			rec.CreatedAt.UnixNano(),
			nullString(rec.ActionID),
		)
		if err != nil {
			return classify("create record", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return model.NewStorageError("create record: last insert id", err)
		}
		rec.ID = id
		return nil
	})
	if err != nil {
		return model.Record{}, err
	}

	rec.CreatedAt = time.Unix(0, rec.CreatedAt.UnixNano()).UTC()
	return rec, nil
}

// GetRecord retrieves a record by id. found is false (with a nil error) when
// no row matches.
func (s *Store) GetRecord(ctx context.Context, sess *Session, id int64) (rec model.Record, found bool, err error) {
	err = s.within(ctx, sess, "get record", func(q querier) error {
		rec, found, err = getRecord(ctx, q, id)
		return err
	})
	return rec, found, err
}

// ListRecords returns every record ordered by id.
func (s *Store) ListRecords(ctx context.Context, sess *Session) ([]model.Record, error) {
	var records []model.Record
	err := s.within(ctx, sess, "list records", func(q querier) error {
		var err error
		records, err = queryRecords(ctx, q, "list records", `
			SELECT `+recordColumns("")+`
			FROM records
			ORDER BY id ASC
		`)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// getRecord reads one record inside an open transaction.
func getRecord(ctx context.Context, q querier, id int64) (model.Record, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+recordColumns("")+`
		FROM records
		WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, false, nil
	}
	if err != nil {
		return model.Record{}, false, model.NewStorageError("get record", err)
	}
	return rec, true, nil
}

// requireRecord reads one record and reports a REFERENTIAL_ERROR when it is
// missing. role names the record in the message ("predecessor", "record").
func requireRecord(ctx context.Context, q querier, id int64, role string) (model.Record, error) {
	rec, found, err := getRecord(ctx, q, id)
	if err != nil {
		return model.Record{}, err
	}
	if !found {
		return model.Record{}, model.NewReferentialError(fmt.Sprintf("%s %d does not exist", role, id), nil)
	}
	return rec, nil
}

// queryRecords runs a query selecting recordColumns and scans every row.
// Returns an empty slice (not nil) when nothing matches.
func queryRecords(ctx context.Context, q querier, op, query string, args ...any) ([]model.Record, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, model.NewStorageError(op, err)
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, model.NewStorageError(op+": scan", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewStorageError(op+": iterate", err)
	}
	return records, nil
}

// scanRecord scans recordColumns into a Record.
func scanRecord(sc scanner) (model.Record, error) {
	var rec model.Record
	var kind string
	var createdAt int64
	var invalidationID, actionID sql.NullString

	if err := sc.Scan(&rec.ID, &rec.Name, &kind, &createdAt, &invalidationID, &actionID); err != nil {
		return model.Record{}, err
	}

	rec.Kind = model.Kind(kind)
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.InvalidationID = invalidationID.String
	rec.ActionID = actionID.String
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
