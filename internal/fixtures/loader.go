package fixtures

import (
	"fmt"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/kickoff-planner/kickoff/internal/config"
	"github.com/kickoff-planner/kickoff/internal/logging"
)

type loaderKey struct {
	path    string
	size    int64
	modTime time.Time
}

// Loader reads and resolves fixture files, caching parsed lists keyed by
// path, size and modification time.
type Loader struct {
	resolver *Resolver
	cache    *lru.Cache[loaderKey, List]
	logger   *zap.Logger
}

// NewLoader creates a Loader resolving names against teams.
func NewLoader(teams []config.Team, cacheSize int, logger *zap.Logger) (*Loader, error) {
	if cacheSize < 1 {
		cacheSize = 16
	}
	cache, err := lru.New[loaderKey, List](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating fixture cache: %w", err)
	}
	return &Loader{
		resolver: NewResolver(teams),
		cache:    cache,
		logger:   logging.OrNop(logger),
	}, nil
}

// Load returns the fixture list in path. Any error is fatal for a run.
func (l *Loader) Load(path string) (List, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixtures: %w", err)
	}
	key := loaderKey{path: path, size: info.Size(), modTime: info.ModTime()}
	if list, ok := l.cache.Get(key); ok {
		return list.clone(), nil
	}

	reader, err := ReaderFor(path)
	if err != nil {
		return nil, err
	}
	raw, err := reader.Read(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	list, err := Build(raw, l.resolver)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	l.logger.Info("fixtures.Load parsed",
		zap.String("path", path),
		zap.Int("weeks", len(list)),
		zap.Int("fixtures", list.Count()),
	)
	l.cache.Add(key, list)
	return list.clone(), nil
}

// Invalidate drops every cached parse of path.
func (l *Loader) Invalidate(path string) {
	for _, k := range l.cache.Keys() {
		if k.path == path {
			l.cache.Remove(k)
		}
	}
}

// Purge drops every cached parse.
func (l *Loader) Purge() {
	l.cache.Purge()
}
