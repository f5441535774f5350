package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"forumpoll/internal/poll"
	logx "forumpoll/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const sqliteAuditMax = 10000

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	auditCount atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, pruneEvery: 500}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func zadd(ctx context.Context, db execer, key string, score float64, member string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO zset(key, member, score) VALUES(?,?,?)
		 ON CONFLICT(key, member) DO UPDATE SET score=excluded.score`,
		key, member, score,
	)
	return err
}

func zrem(ctx context.Context, db execer, key, member string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM zset WHERE key = ? AND member = ?`, key, member)
	return err
}

func (s *sqliteStore) SortedSetAdd(ctx context.Context, key string, score float64, member string) error {
	return zadd(ctx, s.db, key, score, member)
}

func (s *sqliteStore) SortedSetRemove(ctx context.Context, key, member string) error {
	return zrem(ctx, s.db, key, member)
}

func (s *sqliteStore) SortedSetRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT member FROM zset WHERE key = ? ORDER BY score, member`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	lo, hi, ok := normalizeRange(start, stop, len(members))
	if !ok {
		return []string{}, nil
	}
	return members[lo:hi], nil
}

func (s *sqliteStore) CreatePoll(ctx context.Context, p *poll.Poll) (int64, error) {
	if p == nil {
		return 0, errors.New("nil poll")
	}
	settings, err := json.Marshal(p.Settings)
	if err != nil {
		return 0, err
	}
	options, err := json.Marshal(p.Options)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM polls WHERE pid = ?`, p.PID).Scan(&exists)
	if err == nil {
		return 0, ErrPollExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO polls(pid, tid, uid, title, deleted, ended, timestamp, settings, options)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		p.PID, p.TID, p.UID, p.Title, boolInt(p.Deleted), boolInt(p.Ended), p.Timestamp, string(settings), string(options),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := zadd(ctx, tx, AllPollsKey, float64(p.Timestamp), idMember(id)); err != nil {
		return 0, err
	}
	if end, ok := p.Settings.End(); ok && !p.Ended {
		if err := zadd(ctx, tx, ScheduledKey, float64(end), idMember(id)); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

func (s *sqliteStore) GetPoll(ctx context.Context, id int64) (*poll.Poll, error) {
	var (
		p                 poll.Poll
		settings, options string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, pid, tid, uid, title, deleted, ended, timestamp, settings, options
		 FROM polls WHERE id = ?`, id,
	).Scan(&p.ID, &p.PID, &p.TID, &p.UID, &p.Title, &p.Deleted, &p.Ended, &p.Timestamp, &settings, &options)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(settings), &p.Settings); err != nil {
		return nil, fmt.Errorf("poll %d settings: %w", id, err)
	}
	if err := json.Unmarshal([]byte(options), &p.Options); err != nil {
		return nil, fmt.Errorf("poll %d options: %w", id, err)
	}
	return &p, nil
}

func (s *sqliteStore) PollIDByPost(ctx context.Context, pid int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM polls WHERE pid = ?`, pid).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return id, err
}

func (s *sqliteStore) PollSettings(ctx context.Context, id int64) (poll.Settings, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT settings FROM polls WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out poll.Settings
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("poll %d settings: %w", id, err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (s *sqliteStore) ScheduledPolls(ctx context.Context) ([]int64, error) {
	members, err := s.SortedSetRange(ctx, ScheduledKey, 0, -1)
	if err != nil {
		return nil, err
	}
	return parseIDs(members), nil
}

func (s *sqliteStore) EndPoll(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE polls SET ended = 1 WHERE id = ?`, id); err != nil {
		return err
	}
	if err := zrem(ctx, tx, ScheduledKey, idMember(id)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) SetPollDeleted(ctx context.Context, id int64, deleted bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE polls SET deleted = ? WHERE id = ?`, boolInt(deleted), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, action, poll_id, pid, tid, uid, err, meta)
		 VALUES(?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.Action, e.PollID, e.PID, e.TID, e.UID,
		nullStr(e.Error), nullStr(e.MetaJSON),
	)
	if err == nil && s.auditCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		if perr := s.pruneAudit(pctx); perr != nil {
			s.log.Debug("audit prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

// pruneAudit keeps the newest sqliteAuditMax rows.
func (s *sqliteStore) pruneAudit(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM audit WHERE id <= (SELECT MAX(id) FROM audit) - ?`, sqliteAuditMax)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
