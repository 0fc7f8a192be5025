package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/docsmith-ai/docsmith/pkg/models"
)

// Recorder is the narrow interface the queue writes terminal outcomes
// through, so tests can substitute a stub.
type Recorder interface {
	Record(ctx context.Context, rec models.GenerationRecord) error
}

// Log stores generation outcomes in a SQLite database. It is an audit
// record of what the queue produced, not a persistence layer for the
// cache: cached content itself never touches disk.
type Log struct {
	db            *sql.DB
	retentionDays int
	done          chan struct{}
	wg            sync.WaitGroup
}

const createTable = `
CREATE TABLE IF NOT EXISTS generation_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	queue_id TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	document_type TEXT NOT NULL,
	outcome TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_generation_session ON generation_log(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_generation_type ON generation_log(document_type);
`

// New opens the history database, runs auto-migration, and starts the
// retention sweep. retentionDays <= 0 disables retention.
func New(dbPath string, retentionDays int) (*Log, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}

	l := &Log{
		db:            db,
		retentionDays: retentionDays,
		done:          make(chan struct{}),
	}

	if retentionDays > 0 {
		l.wg.Add(1)
		go l.retentionLoop()
	}

	return l, nil
}

// Record stores one terminal generation outcome.
func (l *Log) Record(ctx context.Context, rec models.GenerationRecord) error {
	if l == nil {
		return nil
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO generation_log (queue_id, session_id, document_type, outcome, attempts, latency_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.QueueID, rec.SessionID, string(rec.DocumentType), rec.Outcome,
		rec.Attempts, rec.LatencyMs, rec.Error, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record generation: %w", err)
	}
	return nil
}

// QueryOpts filters a history query.
type QueryOpts struct {
	SessionID    string
	DocumentType models.DocumentType
	Since        time.Time
	Limit        int
}

// Query returns generation records matching the given options, most
// recent first.
func (l *Log) Query(ctx context.Context, opts QueryOpts) ([]models.GenerationRecord, error) {
	q := `SELECT id, queue_id, session_id, document_type, outcome, attempts, latency_ms, error, created_at
		FROM generation_log WHERE 1=1`
	var args []any

	if opts.SessionID != "" {
		q += " AND session_id = ?"
		args = append(args, opts.SessionID)
	}
	if opts.DocumentType != "" {
		q += " AND document_type = ?"
		args = append(args, string(opts.DocumentType))
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since)
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []models.GenerationRecord
	for rows.Next() {
		var r models.GenerationRecord
		var docType string
		if err := rows.Scan(&r.ID, &r.QueueID, &r.SessionID, &docType, &r.Outcome,
			&r.Attempts, &r.LatencyMs, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		r.DocumentType = models.DocumentType(docType)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Summary returns per-document-type aggregates across all records.
func (l *Log) Summary(ctx context.Context) ([]models.GenerationSummary, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT document_type,
			COUNT(*),
			SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END),
			SUM(CASE WHEN outcome = 'cached' THEN 1 ELSE 0 END),
			SUM(CASE WHEN outcome = 'failed' THEN 1 ELSE 0 END),
			CAST(AVG(latency_ms) AS INTEGER)
		 FROM generation_log GROUP BY document_type ORDER BY document_type`)
	if err != nil {
		return nil, fmt.Errorf("history summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.GenerationSummary
	for rows.Next() {
		var s models.GenerationSummary
		var docType string
		if err := rows.Scan(&docType, &s.Total, &s.Succeeded, &s.Cached, &s.Failed, &s.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		s.DocumentType = models.DocumentType(docType)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Cleanup deletes records older than the configured retention period.
func (l *Log) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -l.retentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM generation_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Log) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Log) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}
