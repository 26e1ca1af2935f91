package paramconfig

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/labtranscriber/labtranscriber/internal/labparse"
)

// Snapshot is one immutable generation of the parameter configuration.
// A parse that holds a Snapshot keeps using it even if the store moves on.
type Snapshot struct {
	Index    *labparse.Index
	Version  int64
	Path     string
	LoadedAt time.Time
	Warnings []string
	// Err is set when the configuration could not be loaded and Index is the
	// empty fallback.
	Err error
}

// Issues combines index problems with load problems.
func (s *Snapshot) Issues() []labparse.Issue {
	issues := append([]labparse.Issue(nil), s.Index.Issues()...)
	for _, w := range s.Warnings {
		issues = append(issues, labparse.Issue{Kind: labparse.IssueConfigurationIncomplete, Subject: s.Path, Detail: w})
	}
	if s.Err != nil {
		issues = append(issues, labparse.Issue{Kind: labparse.IssueConfigurationIncomplete, Subject: s.Path, Detail: s.Err.Error()})
	}
	return issues
}

// Store holds the active Snapshot. Reads are lock-free; a reload builds the
// new index completely before publishing it with a single pointer swap.
type Store struct {
	explicit string
	static   *labparse.Configuration
	logger   zerolog.Logger

	mu      sync.Mutex
	version int64
	current atomic.Pointer[Snapshot]
}

// NewStore loads the configuration once. A failure does not prevent startup:
// the store then serves an empty index and records the error on the
// snapshot.
func NewStore(explicit string, logger zerolog.Logger) *Store {
	s := &Store{explicit: explicit, logger: logger}
	if _, err := s.Reload(); err != nil {
		s.mu.Lock()
		s.version++
		s.current.Store(&Snapshot{
			Index:    labparse.EmptyIndex(),
			Version:  s.version,
			Path:     explicit,
			LoadedAt: time.Now().UTC(),
			Err:      err,
		})
		s.mu.Unlock()
	}
	return s
}

// NewStaticStore serves a fixed configuration; Reload rebuilds the same one.
func NewStaticStore(cfg *labparse.Configuration, logger zerolog.Logger) *Store {
	s := &Store{static: cfg, logger: logger}
	s.publish(&Loaded{Config: cfg})
	return s
}

// Current returns the active snapshot.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Reload rebuilds the index from the configuration file. On failure the
// previous snapshot stays active and the error is returned.
func (s *Store) Reload() (*Snapshot, error) {
	if s.static != nil {
		return s.publish(&Loaded{Config: s.static}), nil
	}
	path, err := Discover(s.explicit, s.logger)
	if err != nil {
		return s.Current(), err
	}
	loaded, err := LoadFile(path)
	if err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("parameter configuration not loaded")
		return s.Current(), err
	}
	for _, w := range loaded.Warnings {
		s.logger.Warn().Str("path", path).Msg(w)
	}
	snap := s.publish(loaded)
	s.logger.Info().
		Str("path", path).
		Int64("version", snap.Version).
		Int("parameters", len(snap.Index.Parameters())).
		Int("issues", len(snap.Index.Issues())).
		Msg("parameter configuration loaded")
	return snap, nil
}

func (s *Store) publish(l *Loaded) *Snapshot {
	ix := labparse.NewIndex(l.Config, s.logger)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	snap := &Snapshot{
		Index:    ix,
		Version:  s.version,
		Path:     l.Path,
		LoadedAt: time.Now().UTC(),
		Warnings: l.Warnings,
	}
	s.current.Store(snap)
	return snap
}
