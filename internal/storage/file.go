package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	logx "forumpoll/pkg/logx"
)

const compactEvery = 1000

// journal persists the local store state without external dependencies.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot of the whole state)
//   - <prefix>.journal.jsonl (mutations since the snapshot)
//   - <prefix>.audit.jsonl   (append-only JSON Lines)
//
// The journal is compacted into the snapshot every compactEvery writes and
// on Close.
type journal struct {
	log logx.Logger

	snapshotPath string
	journalFile  *os.File
	auditFile    *os.File

	writes int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"
	auditPath := prefix + ".audit.jsonl"

	st, err := loadSnapshot(snapPath)
	if err != nil {
		return nil, err
	}
	n, err := replayJournal(journalPath, st)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		log.Debug("storage journal replayed", logx.Int("records", n), logx.Int("polls", len(st.Polls)))
	}

	af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}

	return &localStore{
		log: log,
		st:  st,
		j: &journal{
			log:          log,
			snapshotPath: snapPath,
			journalFile:  jf,
			auditFile:    af,
			writes:       n,
		},
	}, nil
}

// append writes r to the journal. st is the state before r is applied.
func (j *journal) append(r record, st *memState) error {
	if j.journalFile == nil {
		return errors.New("journal closed")
	}
	if err := json.NewEncoder(j.journalFile).Encode(r); err != nil {
		return err
	}
	j.writes++
	if j.writes%compactEvery == 0 {
		// The caller applies r after we return, so compact a copy that
		// already includes it.
		next := cloneState(st)
		next.apply(r)
		if err := j.compact(next); err != nil {
			j.log.Debug("storage compact failed", logx.Err(err))
		}
	}
	return nil
}

func (j *journal) appendAudit(e AuditEntry) error {
	if j.auditFile == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(j.auditFile).Encode(e)
}

func (j *journal) compact(st *memState) error {
	tmp := j.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(st); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, j.snapshotPath); err != nil {
		return err
	}
	if err := j.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = j.journalFile.Seek(0, 2)
	return err
}

func (j *journal) close(st *memState) error {
	var errs []error
	if st != nil && j.journalFile != nil {
		if err := j.compact(st); err != nil {
			errs = append(errs, err)
		}
	}
	if j.journalFile != nil {
		errs = append(errs, j.journalFile.Close())
		j.journalFile = nil
	}
	if j.auditFile != nil {
		errs = append(errs, j.auditFile.Close())
		j.auditFile = nil
	}
	return errors.Join(errs...)
}

func cloneState(st *memState) *memState {
	out := newMemState()
	out.NextID = st.NextID
	for id, p := range st.Polls {
		out.Polls[id] = clonePoll(p)
	}
	for k, z := range st.ZSets {
		cp := make(map[string]float64, len(z))
		for m, s := range z {
			cp[m] = s
		}
		out.ZSets[k] = cp
	}
	for pid, id := range st.byPost {
		out.byPost[pid] = id
	}
	return out
}

func loadSnapshot(path string) (*memState, error) {
	st := newMemState()
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(st); err != nil {
		return nil, err
	}
	st.reindex()
	return st, nil
}

// replayJournal applies every decodable record and returns how many it read.
// A torn trailing line (crash mid-write) is skipped.
func replayJournal(path string, st *memState) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for s.Scan() {
		var r record
		if err := json.Unmarshal(s.Bytes(), &r); err != nil || r.Op == "" {
			continue
		}
		st.apply(r)
		n++
	}
	return n, s.Err()
}
