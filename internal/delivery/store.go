package delivery

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eleven-am/voice-capture/internal/shared"
)

const (
	recordPrefix     = "chunk_"
	recordSuffix     = ".json"
	quarantinePrefix = "corrupted_"
)

type record struct {
	AudioData []byte    `json:"audio_data"`
	Bypass    bool      `json:"bypass"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists overflowed chunks as one JSON record per file. Filenames
// embed a zero-padded monotonically increasing counter, so a lexicographic
// listing is the replay order and no separate index is needed. Writes are
// serialized; unreadable records are quarantined by rename, never deleted
// and never retried.
type Store struct {
	dir string
	log *slog.Logger

	mu  sync.Mutex
	seq uint64
}

// OpenStore prepares the cache directory and restores the sequence counter
// from any records already on disk. An unwritable directory is the one
// startup error the agent is allowed to die on.
func OpenStore(dir string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	probe := filepath.Join(dir, ".writable")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return nil, fmt.Errorf("cache dir not writable: %w", err)
	}
	_ = os.Remove(probe)

	s := &Store{dir: dir, log: log}

	names, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if seq, ok := parseSeq(name); ok && seq >= s.seq {
			s.seq = seq + 1
		}
	}
	return s, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Save writes one chunk record. The sequence counter advances even when the
// write fails, keeping filenames strictly increasing.
func (s *Store) Save(c Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	data, err := json.Marshal(record{
		AudioData: c.Data,
		Bypass:    c.Bypass,
		CreatedAt: created,
	})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	name := fmt.Sprintf("%s%020d%s", recordPrefix, s.seq, recordSuffix)
	s.seq++

	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	s.log.Debug("chunk persisted", "record", name, "bytes", len(c.Data))
	return nil
}

// List returns live record names in replay (creation) order. Quarantined
// files are excluded.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scan cache dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, recordPrefix) || !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Load reads one record back. Undecodable content is reported as
// shared.ErrRecordCorrupted so the caller can quarantine it.
func (s *Store) Load(name string) (Chunk, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: %s: %v", shared.ErrRecordCorrupted, name, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Chunk{}, fmt.Errorf("%w: %s: %v", shared.ErrRecordCorrupted, name, err)
	}

	return Chunk{
		Data:      rec.AudioData,
		Bypass:    rec.Bypass,
		CreatedAt: rec.CreatedAt,
	}, nil
}

func (s *Store) Remove(name string) error {
	return os.Remove(filepath.Join(s.dir, name))
}

// Quarantine renames a corrupted record so it is excluded from every future
// retry pass but stays on disk for inspection.
func (s *Store) Quarantine(name string) {
	from := filepath.Join(s.dir, name)
	to := filepath.Join(s.dir, quarantinePrefix+name)
	if err := os.Rename(from, to); err != nil {
		s.log.Error("quarantine failed", "record", name, "error", err)
		return
	}
	s.log.Warn("record quarantined", "record", name)
}

// Count reports the persisted backlog.
func (s *Store) Count() int {
	names, err := s.List()
	if err != nil {
		return 0
	}
	return len(names)
}

func parseSeq(name string) (uint64, bool) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, recordPrefix), recordSuffix)
	seq, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}
