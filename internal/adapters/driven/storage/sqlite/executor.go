// Package sqlite implements the database ports on SQLite. All writes to
// one database funnel through a single writer goroutine holding a
// dedicated connection; reads go through a small read-only pool.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/ports/driven"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/logger"
)

// roPoolSize bounds concurrent readers per database.
const roPoolSize = 3

// roAcquireTimeout bounds how long a read waits for a pooled connection.
const roAcquireTimeout = 10 * time.Second

// Ensure Executor implements the interface.
var _ driven.DBExecutor = (*Executor)(nil)

var (
	registryMu sync.Mutex
	registry   = map[string]*Executor{}
)

// Executor serializes writes to one database file through a writer
// goroutine and serves reads from a read-only pool.
type Executor struct {
	path   string
	writes chan writeReq
	checks chan checkReq
	done   chan struct{}
	joined chan struct{}
	ro     *sql.DB
}

type writeReq struct {
	ctx   context.Context
	stmts []driven.Statement
	reply chan writeResp
}

type writeResp struct {
	affected int64
	err      error
}

type checkReq struct {
	ctx   context.Context
	reply chan error
}

// ExecutorFor returns the memoized executor for a database path,
// constructing it on first use.
func ExecutorFor(path string) (*Executor, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if e, ok := registry[path]; ok {
		return e, nil
	}
	e, err := newExecutor(path)
	if err != nil {
		return nil, err
	}
	registry[path] = e
	return e, nil
}

func newExecutor(path string) (*Executor, error) {
	w, err := sql.Open("sqlite", dsn(path, false))
	if err != nil {
		return nil, fmt.Errorf("opening writer database: %w", err)
	}
	w.SetMaxOpenConns(1)

	conn, err := w.Conn(context.Background())
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("acquiring writer connection: %w", err)
	}

	ro, err := sql.Open("sqlite", dsn(path, true))
	if err != nil {
		conn.Close()
		w.Close()
		return nil, fmt.Errorf("opening read-only pool: %w", err)
	}
	ro.SetMaxOpenConns(roPoolSize)

	e := &Executor{
		path:   path,
		writes: make(chan writeReq),
		checks: make(chan checkReq),
		done:   make(chan struct{}),
		joined: make(chan struct{}),
		ro:     ro,
	}
	go e.run(w, conn)
	return e, nil
}

// dsn composes the connection string with the required PRAGMAs.
func dsn(path string, readOnly bool) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "temp_store(MEMORY)")
	q.Add("_pragma", "foreign_keys(ON)")
	q.Add("_pragma", "busy_timeout(5000)")
	if readOnly {
		q.Set("mode", "ro")
		q.Add("_pragma", "query_only(ON)")
	}
	return "file:" + path + "?" + q.Encode()
}

// ExecBatchWrite runs the statements in one immediate transaction and
// returns the total rows affected.
func (e *Executor) ExecBatchWrite(ctx context.Context, stmts []driven.Statement) (int64, error) {
	req := writeReq{ctx: ctx, stmts: stmts, reply: make(chan writeResp, 1)}
	select {
	case e.writes <- req:
	case <-e.done:
		return 0, fmt.Errorf("executor for %s is closed", e.path)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case resp := <-req.reply:
		return resp.affected, resp.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// CheckpointWal forces a WAL checkpoint through the writer.
func (e *Executor) CheckpointWal(ctx context.Context) error {
	req := checkReq{ctx: ctx, reply: make(chan error, 1)}
	select {
	case e.checks <- req:
	case <-e.done:
		return fmt.Errorf("executor for %s is closed", e.path)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecFetchAll runs a read query on the pool and returns every row as a
// column-to-value map.
func (e *Executor) ExecFetchAll(ctx context.Context, stmt driven.Statement) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, roAcquireTimeout)
	defer cancel()

	args := make([]any, len(stmt.Binds))
	for i, b := range stmt.Binds {
		args[i] = b.Arg()
	}

	rows, err := e.ro.QueryContext(ctx, stmt.SQL, args...)
	if err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// Close stops the writer goroutine and releases all connections.
func (e *Executor) Close() error {
	registryMu.Lock()
	delete(registry, e.path)
	registryMu.Unlock()

	select {
	case <-e.done:
	default:
		close(e.done)
	}
	<-e.joined
	return e.ro.Close()
}

// run is the writer goroutine. It owns the single writable connection
// for the database's lifetime.
func (e *Executor) run(db *sql.DB, conn *sql.Conn) {
	defer close(e.joined)
	defer db.Close()
	defer conn.Close()

	for {
		select {
		case req := <-e.writes:
			affected, err := execBatch(req.ctx, conn, req.stmts)
			req.reply <- writeResp{affected: affected, err: err}

		case req := <-e.checks:
			_, err := conn.ExecContext(req.ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
			req.reply <- err

		case <-e.done:
			return
		}
	}
}

// execBatch runs the statements under BEGIN IMMEDIATE. The first error
// rolls everything back.
func execBatch(ctx context.Context, conn *sql.Conn, stmts []driven.Statement) (int64, error) {
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}

	var total int64
	for _, stmt := range stmts {
		args := make([]any, len(stmt.Binds))
		for i, b := range stmt.Binds {
			args[i] = b.Arg()
		}
		res, err := conn.ExecContext(ctx, stmt.SQL, args...)
		if err != nil {
			if _, rbErr := conn.ExecContext(ctx, "ROLLBACK"); rbErr != nil {
				logger.Warn("rollback failed", "error", rbErr)
			}
			return 0, fmt.Errorf("executing statement: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		if _, rbErr := conn.ExecContext(ctx, "ROLLBACK"); rbErr != nil {
			logger.Warn("rollback failed", "error", rbErr)
		}
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return total, nil
}
