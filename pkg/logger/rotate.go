package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const backupStamp = "20060102T150405.000"

// rotatingWriter 以追加方式写单个日志文件,超过大小上限时把当前文件
// 改名为带时间戳的备份,再按份数与保留天数清理旧备份。
type rotatingWriter struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	maxSize    int64
	maxBackups int
	maxAge     time.Duration
	size       int64
}

func newRotatingWriter(path string, maxSizeMB, maxBackups, maxAgeDays int) (*rotatingWriter, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	if maxBackups <= 0 {
		maxBackups = 7
	}
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	return &rotatingWriter{
		path:       path,
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
		maxAge:     time.Duration(maxAgeDays) * 24 * time.Hour,
	}, nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.open(); err != nil {
		return 0, err
	}
	if w.maxSize > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
		if err := w.open(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *rotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.size = 0
	return err
}

func (w *rotatingWriter) open() error {
	if w.file != nil {
		return nil
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	w.file = file
	w.size = info.Size()
	return nil
}

// rotate 将当前文件转为时间戳备份并触发清理。
func (w *rotatingWriter) rotate() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	w.size = 0

	if _, err := os.Stat(w.path); err == nil {
		if err := os.Rename(w.path, w.backupName(time.Now())); err != nil {
			return fmt.Errorf("rotate audit log: %w", err)
		}
	}
	w.prune()
	return nil
}

// backupName 形如 audit-20060102T150405.000.log。
func (w *rotatingWriter) backupName(now time.Time) string {
	ext := filepath.Ext(w.path)
	base := strings.TrimSuffix(w.path, ext)
	return fmt.Sprintf("%s-%s%s", base, now.Format(backupStamp), ext)
}

// prune 删除超龄备份,再把剩余备份裁剪到 maxBackups 份。
func (w *rotatingWriter) prune() {
	backups := w.listBackups()
	if w.maxAge > 0 {
		cutoff := time.Now().Add(-w.maxAge)
		kept := backups[:0]
		for _, path := range backups {
			if stamp, ok := w.backupTime(path); ok && stamp.Before(cutoff) {
				_ = os.Remove(path)
				continue
			}
			kept = append(kept, path)
		}
		backups = kept
	}
	if w.maxBackups > 0 && len(backups) > w.maxBackups {
		// listBackups 按时间升序,多出来的都是最旧的。
		for _, path := range backups[:len(backups)-w.maxBackups] {
			_ = os.Remove(path)
		}
	}
}

func (w *rotatingWriter) listBackups() []string {
	ext := filepath.Ext(w.path)
	base := strings.TrimSuffix(w.path, ext)
	matches, err := filepath.Glob(base + "-*" + ext)
	if err != nil {
		return nil
	}
	backups := matches[:0]
	for _, path := range matches {
		if _, ok := w.backupTime(path); ok {
			backups = append(backups, path)
		}
	}
	sort.Strings(backups)
	return backups
}

func (w *rotatingWriter) backupTime(path string) (time.Time, bool) {
	ext := filepath.Ext(w.path)
	base := strings.TrimSuffix(w.path, ext)
	stamp := strings.TrimSuffix(strings.TrimPrefix(path, base+"-"), ext)
	parsed, err := time.Parse(backupStamp, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
