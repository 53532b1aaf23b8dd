package tradelog

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

const (
	fileExt    = ".jsonl"
	timeLayout = "2006-01-02 15:04:05"
)

// Entry is one operator command and how it ended.
type Entry struct {
	Time    string   `json:"time"`
	Command string   `json:"command"`
	Outcome string   `json:"outcome"`
	Message string   `json:"message,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
	Error   string   `json:"error,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// Journal appends command entries to one JSON-lines file per UTC day.
type Journal struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func New(dir string) *Journal {
	return &Journal{dir: dir, now: time.Now}
}

// FromEnv uses TRADER_LOG_DIR, defaulting to logs/commands.
func FromEnv() *Journal {
	dir := os.Getenv("TRADER_LOG_DIR")
	if dir == "" {
		dir = filepath.Join("logs", "commands")
	}
	return New(dir)
}

// RetentionDaysFromEnv reads TRADER_LOG_RETENTION_DAYS; 0 disables compression.
func RetentionDaysFromEnv() int {
	n, err := strconv.Atoi(os.Getenv("TRADER_LOG_RETENTION_DAYS"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (j *Journal) Dir() string { return j.dir }

func (j *Journal) dailyPath(t time.Time) string {
	return filepath.Join(j.dir, t.UTC().Format("2006-01-02")+fileExt)
}

// Append stamps e with the current time and writes it.
func (j *Journal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now().UTC()
	e.Time = now.Format(timeLayout)

	p := j.dailyPath(now)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// Day returns the entries written on t's UTC day, oldest first. A day with no
// file yields no entries.
func (j *Journal) Day(t time.Time) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.dailyPath(t))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return out, fmt.Errorf("%s: %w", f.Name(), err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// CompressOlder gzips journal files last modified more than retentionDays ago
// and removes the originals. It returns the number of files compressed.
func (j *Journal) CompressOlder(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := j.now().AddDate(0, 0, -retentionDays)
	compressed := 0
	err := filepath.WalkDir(j.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || filepath.Ext(p) != fileExt {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}

		gz := p + ".gz"
		if _, err := os.Stat(gz); err == nil {
			return os.Remove(p)
		}
		if err := gzipFile(p, gz); err != nil {
			return err
		}
		compressed++
		return os.Remove(p)
	})
	return compressed, err
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("compress %s: %w", src, err)
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
