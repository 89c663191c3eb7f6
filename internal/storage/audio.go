package storage

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// AudioURLPrefix is the public route of synthesized replies.
const AudioURLPrefix = "/api/v1/audio/"

var audioNamePattern = regexp.MustCompile(`^(\d+)-VA\.mp3$`)

// AudioStore writes synthesized replies and removes them once they expire.
// Files are named <unix-millis>-VA.mp3 so their age is read from the name.
type AudioStore struct {
	dir       string
	retention time.Duration
}

// NewAudioStore creates the directory if needed.
func NewAudioStore(dir string, retention time.Duration) (*AudioStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create audio dir %s", dir)
	}
	return &AudioStore{dir: dir, retention: retention}, nil
}

// Dir returns the directory served under AudioURLPrefix.
func (s *AudioStore) Dir() string { return s.dir }

// Write stores data under a name derived from now and returns the name.
func (s *AudioStore) Write(data []byte, now time.Time) (string, error) {
	name := strconv.FormatInt(now.UnixMilli(), 10) + "-VA.mp3"
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", name)
	}
	return name, nil
}

// RemoveExpired deletes files older than the retention period. Files whose
// names do not carry a timestamp are left alone.
func (s *AudioStore) RemoveExpired(now time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list audio dir")
	}

	removed := 0
	cutoff := now.Add(-s.retention).UnixMilli()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := audioNamePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		ts, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || ts > cutoff {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return removed, errors.Wrapf(err, "failed to remove %s", entry.Name())
		}
		removed++
	}
	return removed, nil
}
