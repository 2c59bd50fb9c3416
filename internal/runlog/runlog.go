// Package runlog keeps a per-day JSONL record of (model, article) runs that did not end in a save.
package runlog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Entry struct {
	Time      string `json:"time"`
	PassID    string `json:"pass_id,omitempty"`
	Phase     string `json:"phase"`
	Model     string `json:"model"`
	ArticleID uint   `json:"article_id,omitempty"`
	Link      string `json:"link,omitempty"`
	Ticker    string `json:"ticker,omitempty"`
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
}

type Log struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

func New(dir string) *Log {
	return &Log{dir: dir, now: time.Now}
}

func (l *Log) dailyFilepath(t time.Time) string {
	return filepath.Join(l.dir, "failed", t.UTC().Format("2006-01-02")+".txt")
}

// Append writes e as one JSON line to today's file.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e.Time = now.UTC().Format(time.RFC3339)
	p := l.dailyFilepath(now)
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
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips .txt files last modified more than retentionDays ago.
func (l *Log) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := l.now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(l.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".txt" {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		// already compressed by an earlier run
		if _, err := os.Stat(gz); err == nil {
			_ = os.Remove(p)
			return nil
		}
		if err := gzipFile(p, gz); err == nil {
			_ = os.Remove(p)
		}
		return nil
	})
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
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
