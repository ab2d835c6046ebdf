// Package store persists backtest runs as whole-document snapshots in
// DuckDB. One row per run; the document column holds the full JSON
// serialization, and the remaining columns exist for lookup and listing.
package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/austin-starks/nexttrade/internal/backtest"
	"github.com/austin-starks/nexttrade/internal/logger"
	"github.com/austin-starks/nexttrade/internal/market"
	"github.com/austin-starks/nexttrade/internal/types"
	"github.com/austin-starks/nexttrade/internal/version"
	"github.com/austin-starks/nexttrade/pkg/errors"
)

// Store is a run-document repository backed by DuckDB. It implements
// backtest.Saver.
type Store struct {
	db  *sql.DB
	sq  squirrel.StatementBuilderType
	log *logger.Logger
}

// NewStore opens (or creates) a DuckDB database at the given path and
// prepares the backtests table. An empty path opens an in-memory database.
func NewStore(path string, log *logger.Logger) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to open database", err)
	}

	store := &Store{
		db:  db,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		log: log,
	}

	if err := store.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	return store, nil
}

func (s *Store) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS backtests (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			name TEXT,
			status TEXT,
			error TEXT,
			engine_version TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			document JSON
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to create backtests table", err)
	}

	return nil
}

// Save writes the full run snapshot, replacing any previous row for the
// same run.
func (s *Store) Save(ctx context.Context, b *backtest.Backtester) error {
	document, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to serialize backtest", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to begin transaction", err)
	}

	deleteQuery := s.sq.
		Delete("backtests").
		Where(squirrel.Eq{"id": b.ID}).
		RunWith(tx)

	if _, err := deleteQuery.ExecContext(ctx); err != nil {
		tx.Rollback()

		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to replace backtest row", err)
	}

	insertQuery := s.sq.
		Insert("backtests").
		Columns("id", "user_id", "name", "status", "error", "engine_version", "created_at", "updated_at", "document").
		Values(b.ID, b.UserID, b.Name, string(b.Status), b.Error, version.Version, b.CreatedAt, b.UpdatedAt, string(document)).
		RunWith(tx)

	if _, err := insertQuery.ExecContext(ctx); err != nil {
		tx.Rollback()

		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to insert backtest", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to commit backtest", err)
	}

	return nil
}

// FindOne loads a run by id scoped to its owner. Returns None when no such
// run exists; fails when the stored document was written by an incompatible
// engine version.
func (s *Store) FindOne(ctx context.Context, id, userID string) (optional.Option[*backtest.Backtester], error) {
	selectQuery := s.sq.
		Select("document", "engine_version").
		From("backtests").
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		RunWith(s.db)

	var document, documentVersion string

	err := selectQuery.QueryRowContext(ctx).Scan(&document, &documentVersion)
	if err == sql.ErrNoRows {
		return optional.None[*backtest.Backtester](), nil
	}

	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query backtest", err)
	}

	if err := version.CheckVersionCompatibility(version.Version, documentVersion); err != nil {
		return nil, err
	}

	var b backtest.Backtester
	if err := json.Unmarshal([]byte(document), &b); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to deserialize backtest", err)
	}

	return optional.Some(&b), nil
}

// FindOneAndRun loads a run, resets it to its pre-execution state and
// re-runs it against the given provider, persisting the outcome.
func (s *Store) FindOneAndRun(ctx context.Context, id, userID string, provider market.Provider, opts backtest.RunOptions) (*backtest.Backtester, error) {
	found, err := s.FindOne(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if found.IsNone() {
		return nil, errors.Newf(errors.ErrCodeBacktestNotFound, "backtest %s not found for user %s", id, userID)
	}

	b := found.Unwrap()
	if err := b.Rehydrate(provider, s, s.log); err != nil {
		return nil, err
	}

	b.Reset()

	opts.SaveOnRun = true
	b.Run(ctx, opts)

	if b.Status == types.StatusError {
		s.log.Warn("re-run finished with error status", zap.String("id", b.ID), zap.String("error", b.Error))
	}

	return b, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
