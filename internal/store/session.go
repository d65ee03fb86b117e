package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/braid/internal/model"
)

// ErrSessionClosed is wrapped by STORAGE_ERROR when a committed or rolled
// back Session is used again.
var ErrSessionClosed = errors.New("session is closed")

// querier is the subset of *sql.Tx used by repository operations.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Session is a unit of work against the store.
//
// Pass a Session to several Store, engine and dispatcher calls to group them
// into one transaction. The caller owns commit and rollback:
//
//	sess, err := st.Begin(ctx)
//	if err != nil {
//	    return err
//	}
//	defer sess.Close() // rolls back unless committed
//	...
//	return sess.Commit()
type Session struct {
	tx     *sql.Tx
	closed bool
}

// Begin starts a new Session.
func (s *Store) Begin(ctx context.Context) (*Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, model.NewStorageError("begin session", err)
	}
	return &Session{tx: tx}, nil
}

// Commit commits the session. The session cannot be used afterwards.
func (sess *Session) Commit() error {
	if sess.closed {
		return model.NewStorageError("commit session", ErrSessionClosed)
	}
	sess.closed = true
	if err := sess.tx.Commit(); err != nil {
		return model.NewStorageError("commit session", err)
	}
	return nil
}

// Rollback discards the session's changes.
func (sess *Session) Rollback() error {
	if sess.closed {
		return model.NewStorageError("rollback session", ErrSessionClosed)
	}
	sess.closed = true
	if err := sess.tx.Rollback(); err != nil {
		return model.NewStorageError("rollback session", err)
	}
	return nil
}

// Close rolls back the session if it is still open. Safe to call on every
// exit path, including after Commit.
func (sess *Session) Close() error {
	if sess == nil || sess.closed {
		return nil
	}
	return sess.Rollback()
}

// Active reports whether the session can still be used.
func (sess *Session) Active() bool {
	return sess != nil && !sess.closed
}

// ExecContext runs a statement inside the session.
func (sess *Session) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if sess.closed {
		return nil, model.NewStorageError("exec", ErrSessionClosed)
	}
	return sess.tx.ExecContext(ctx, query, args...)
}

// QueryContext runs a query inside the session.
// Callers are responsible for closing the returned rows.
func (sess *Session) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if sess.closed {
		return nil, model.NewStorageError("query", ErrSessionClosed)
	}
	return sess.tx.QueryContext(ctx, query, args...)
}

// within runs fn against the session's transaction, or against a one-shot
// transaction committed before returning when sess is nil.
func (s *Store) within(ctx context.Context, sess *Session, op string, fn func(q querier) error) error {
	if sess != nil {
		if sess.closed {
			return model.NewStorageError(op, ErrSessionClosed)
		}
		return fn(sess.tx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.NewStorageError(op+": begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return model.NewStorageError(op+": commit", err)
	}
	return nil
}

// classify maps a driver error to the BRAID error taxonomy.
// Foreign key violations are REFERENTIAL_ERROR, everything else STORAGE_ERROR.
func classify(op string, err error) error {
	var me *model.Error
	if errors.As(err, &me) {
		return err
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
		return model.NewReferentialError(op, err)
	}
	return model.NewStorageError(op, err)
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY violation.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
