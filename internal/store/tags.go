package store

import (
	"context"
	"fmt"
	"iter"

	"github.com/roach88/braid/internal/model"
)

// AddTag appends a tag to a record and returns the new tag id.
//
// Tags are append-only: re-adding an existing key creates a second row.
// value is stored as model.TagText(value) regardless of typ.
func (s *Store) AddTag(ctx context.Context, sess *Session, recordID int64, key string, value any, typ model.TagType) (int64, error) {
	if !typ.Valid() {
		return 0, model.NewInvalidArgument(fmt.Sprintf("tag type must be NONE, STRING, INTEGER or FLOAT, got %d", int(typ)))
	}
	if key == "" {
		return 0, model.NewInvalidArgument("tag key must not be empty")
	}

	var id int64
	err := s.within(ctx, sess, "add tag", func(q querier) error {
		if _, err := requireRecord(ctx, q, recordID, "record"); err != nil {
			return err
		}
		result, err := q.ExecContext(ctx, `
			INSERT INTO tags (record_id, key, value, tag_type)
			VALUES (?, ?, ?, ?)
		`, recordID, model.TagKey(key), model.TagText(value), int(typ))
		if err != nil {
			return classify("add tag", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return model.NewStorageError("add tag: last insert id", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Tags returns a record's tags in insertion order.
func (s *Store) Tags(ctx context.Context, sess *Session, recordID int64) ([]model.Tag, error) {
	tags := []model.Tag{}
	err := s.within(ctx, sess, "read tags", func(q querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT id, record_id, key, value, tag_type
			FROM tags
			WHERE record_id = ?
			ORDER BY id ASC
		`, recordID)
		if err != nil {
			return model.NewStorageError("read tags", err)
		}
		defer rows.Close()

		for rows.Next() {
			var t model.Tag
			var typ int
			if err := rows.Scan(&t.ID, &t.RecordID, &t.Key, &t.Value, &typ); err != nil {
				return model.NewStorageError("scan tag", err)
			}
			t.Type = model.TagType(typ)
			tags = append(tags, t)
		}
		if err := rows.Err(); err != nil {
			return model.NewStorageError("iterate tags", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// TagsAsMap flattens a record's tags to key -> value.
//
// Rows are read in insertion order (ascending tag id), so when a key was added
// more than once the most recently added row wins.
func (s *Store) TagsAsMap(ctx context.Context, sess *Session, recordID int64) (map[string]string, error) {
	tags, err := s.Tags(ctx, sess, recordID)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[t.Key] = t.Value
	}
	return m, nil
}

// FindByTagValue returns the records carrying a tag key whose value equals
// value. Equality is on text: value goes through model.TagText, so 10 and
// "10" match the same rows while "10.0" does not.
//
// The sequence is lazy and restartable: each range re-runs the lookup,
// fetching pages of records in id order. No rows are held open while the
// caller's loop body runs, so the body may use the same store and session.
// A storage failure is yielded once as the error and ends the sequence.
func (s *Store) FindByTagValue(ctx context.Context, sess *Session, key string, value any) iter.Seq2[model.Record, error] {
	key = model.TagKey(key)
	text := model.TagText(value)

	return func(yield func(model.Record, error) bool) {
		var after int64
		for {
			var page []model.Record
			err := s.within(ctx, sess, "find by tag value", func(q querier) error {
				var err error
				page, err = queryRecords(ctx, q, "find by tag value", `
					SELECT `+recordColumns("r")+`
					FROM records r
					WHERE r.id > ?
					  AND EXISTS (
						SELECT 1 FROM tags t
						WHERE t.record_id = r.id AND t.key = ? AND t.value = ?
					  )
					ORDER BY r.id ASC
					LIMIT ?
				`, after, key, text, s.pageSize)
				return err
			})
			if err != nil {
				yield(model.Record{}, err)
				return
			}

			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
				after = rec.ID
			}
			if len(page) < s.pageSize {
				return
			}
		}
	}
}

// Collect drains a record sequence into a slice, stopping at the first error.
func Collect(seq iter.Seq2[model.Record, error]) ([]model.Record, error) {
	records := []model.Record{}
	for rec, err := range seq {
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// AddURI appends a URI to a record and returns the new row id. No dedup.
func (s *Store) AddURI(ctx context.Context, sess *Session, recordID int64, uri string) (int64, error) {
	if uri == "" {
		return 0, model.NewInvalidArgument("uri must not be empty")
	}

	var id int64
	err := s.within(ctx, sess, "add uri", func(q querier) error {
		if _, err := requireRecord(ctx, q, recordID, "record"); err != nil {
			return err
		}
		result, err := q.ExecContext(ctx, `
			INSERT INTO uris (record_id, uri) VALUES (?, ?)
		`, recordID, uri)
		if err != nil {
			return classify("add uri", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return model.NewStorageError("add uri: last insert id", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// URIs returns a record's URIs in insertion order.
func (s *Store) URIs(ctx context.Context, sess *Session, recordID int64) ([]string, error) {
	uris := []string{}
	err := s.within(ctx, sess, "read uris", func(q querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT uri FROM uris
			WHERE record_id = ?
			ORDER BY id ASC
		`, recordID)
		if err != nil {
			return model.NewStorageError("read uris", err)
		}
		defer rows.Close()

		for rows.Next() {
			var u string
			if err := rows.Scan(&u); err != nil {
				return model.NewStorageError("scan uri", err)
			}
			uris = append(uris, u)
		}
		if err := rows.Err(); err != nil {
			return model.NewStorageError("iterate uris", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return uris, nil
}

// FirstURI returns "the" URI of a record: the first one added.
func (s *Store) FirstURI(ctx context.Context, sess *Session, recordID int64) (string, bool, error) {
	uris, err := s.URIs(ctx, sess, recordID)
	if err != nil {
		return "", false, err
	}
	if len(uris) == 0 {
		return "", false, nil
	}
	return uris[0], true, nil
}
