package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmylchreest/compstack/internal/model"
)

// SchemaVersion is the current journal schema version.
const SchemaVersion = 1

// maxLineSize bounds a single journal record.
const maxLineSize = 1 << 20

// ErrPersistenceClosed is returned when operations are attempted on a closed persistence.
var ErrPersistenceClosed = errors.New("persistence is closed")

// Persistence is the journal's backing storage.
type Persistence interface {
	Load() ([]model.Pass, error)
	Append(p model.Pass) error
	AppendBatch(ps []model.Pass) error
	// Rewrite replaces the stored passes, used after prune and delete.
	Rewrite(ps []model.Pass) error
	Clear() error
	Close() error
}

// schemaHeader is the first line of the journal.
type schemaHeader struct {
	CompstackSchemaVersion int   `json:"compstack_schema_version"`
	CreatedAt              int64 `json:"created_at"`
}

func parseHeader(line []byte) (schemaHeader, bool) {
	var h schemaHeader
	if json.Unmarshal(line, &h) != nil || h.CompstackSchemaVersion == 0 {
		return h, false
	}
	return h, true
}

// readJournal decodes every pass record in r. Header lines and blank lines
// are ignored; undecodable records are counted in skipped. A header newer
// than SchemaVersion is an error when strict.
func readJournal(r io.Reader, strict bool) (passes []model.Pass, skipped int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if h, ok := parseHeader(line); ok {
			if strict && h.CompstackSchemaVersion > SchemaVersion {
				return nil, 0, fmt.Errorf("unsupported schema version %d (max: %d)",
					h.CompstackSchemaVersion, SchemaVersion)
			}
			continue
		}

		var pass model.Pass
		if json.Unmarshal(line, &pass) != nil || pass.ID == "" {
			skipped++
			continue
		}
		passes = append(passes, pass)
	}
	if err := scanner.Err(); err != nil {
		return passes, skipped, fmt.Errorf("error reading journal: %w", err)
	}
	return passes, skipped, nil
}

// writePasses encodes one pass per line.
func writePasses(w io.Writer, ps []model.Pass) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range ps {
		if err := enc.Encode(&ps[i]); err != nil {
			return fmt.Errorf("failed to write pass %s: %w", ps[i].ID, err)
		}
	}
	return nil
}

// JSONLPersistence stores the journal as a JSON-lines file headed by a
// schema record.
type JSONLPersistence struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	closed  bool
	skipped int
}

// NewJSONLPersistence opens or creates the journal at path.
func NewJSONLPersistence(path string) (*JSONLPersistence, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	p := &JSONLPersistence{path: path}
	if err := p.open(os.O_RDWR | os.O_CREATE | os.O_APPEND); err != nil {
		return nil, err
	}
	return p, nil
}

// open (re)opens the file and writes a header when it is empty.
func (p *JSONLPersistence) open(flags int) error {
	file, err := os.OpenFile(p.path, flags, 0600)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", p.path, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return err
	}
	p.file = file
	if info.Size() > 0 {
		return nil
	}

	data, err := json.Marshal(schemaHeader{
		CompstackSchemaVersion: SchemaVersion,
		CreatedAt:              time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	_, err = file.Write(append(data, '\n'))
	return err
}

func (p *JSONLPersistence) Path() string { return p.path }

// Skipped reports how many records the last Load could not decode.
func (p *JSONLPersistence) Skipped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.skipped
}

func (p *JSONLPersistence) usable() error {
	if p.closed || p.file == nil {
		return ErrPersistenceClosed
	}
	return nil
}

// Load reads all passes. Malformed lines are skipped and counted.
func (p *JSONLPersistence) Load() ([]model.Pass, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.usable(); err != nil {
		return nil, err
	}
	if _, err := p.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", p.path, err)
	}

	passes, skipped, err := readJournal(p.file, true)
	p.skipped = skipped
	if err != nil {
		return passes, err
	}

	if _, err := p.file.Seek(0, io.SeekEnd); err != nil {
		return passes, err
	}
	return passes, nil
}

func (p *JSONLPersistence) Append(pass model.Pass) error {
	return p.AppendBatch([]model.Pass{pass})
}

// AppendBatch writes ps and syncs once.
func (p *JSONLPersistence) AppendBatch(ps []model.Pass) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.usable(); err != nil {
		return err
	}
	if err := writePasses(p.file, ps); err != nil {
		return err
	}
	return p.file.Sync()
}

// Rewrite replaces the file contents with ps. The previous file is held
// as .bak until the new one is synced.
func (p *JSONLPersistence) Rewrite(ps []model.Pass) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPersistenceClosed
	}
	if err := p.truncate(); err != nil {
		return err
	}
	if err := writePasses(p.file, ps); err != nil {
		return err
	}
	if err := p.file.Sync(); err != nil {
		return err
	}
	_ = os.Remove(p.path + ".bak")
	return nil
}

// Clear empties the journal, leaving the previous contents in .bak.
func (p *JSONLPersistence) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPersistenceClosed
	}
	if err := p.truncate(); err != nil {
		return err
	}
	return p.file.Sync()
}

func (p *JSONLPersistence) truncate() error {
	if p.file != nil {
		if err := p.file.Close(); err != nil {
			return err
		}
		p.file = nil
	}

	backup := p.path + ".bak"
	if err := os.Rename(p.path, backup); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	if err := p.open(os.O_RDWR | os.O_CREATE | os.O_TRUNC | os.O_APPEND); err != nil {
		_ = os.Rename(backup, p.path)
		return err
	}
	return nil
}

func (p *JSONLPersistence) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}

// RecoverFromCorruption rewrites path keeping only the records that decode
// as passes, and returns how many were kept. The original file is moved
// aside with a timestamped .corrupted suffix.
func RecoverFromCorruption(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	valid, _, _ := readJournal(file, false)
	_ = file.Close()

	backup := path + ".corrupted." + time.Now().Format("20060102-150405")
	if err := os.Rename(path, backup); err != nil {
		return 0, fmt.Errorf("failed to backup corrupted file: %w", err)
	}

	p, err := NewJSONLPersistence(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = p.Close() }()

	return len(valid), p.AppendBatch(valid)
}
