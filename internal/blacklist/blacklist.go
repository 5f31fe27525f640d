// Package blacklist implements the durable symbol blacklist. The on-disk
// format is a single JSON array of "BASE/QUOTE" strings; writes go through
// a temp file and rename so a crash never leaves a torn file behind.
package blacklist

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dpfaria/triarb/internal/apperror"
	"github.com/dpfaria/triarb/internal/logger"
)

// Store is the persistent blacklist. All mutation is serialised through a
// single mutex; Add returns only after the on-disk state includes the symbol.
type Store struct {
	path   string
	logger logger.LoggerInterface

	mu      sync.RWMutex
	symbols map[string]struct{}
}

// Open loads the blacklist from path. A missing file or a parse error is
// treated as an empty blacklist, never as a startup failure.
func Open(path string, log logger.LoggerInterface) *Store {
	s := &Store{
		path:    path,
		logger:  log,
		symbols: make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn(context.Background(), "blacklist file unreadable, starting empty", "path", path, "error", err)
		}
		return s
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		log.Warn(context.Background(), "blacklist file corrupt, starting empty", "path", path, "error", err)
		return s
	}
	for _, sym := range list {
		s.symbols[sym] = struct{}{}
	}
	return s
}

// Contains reports whether the symbol is blacklisted.
func (s *Store) Contains(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.symbols[symbol]
	return ok
}

// Len returns the number of blacklisted symbols.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.symbols)
}

// Symbols returns the blacklisted symbols in sorted order.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Add blacklists a symbol and flushes to disk before returning. Adding an
// already-present symbol is a no-op and does not rewrite the file.
func (s *Store) Add(ctx context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.symbols[symbol]; ok {
		return nil
	}
	s.symbols[symbol] = struct{}{}

	if err := s.flushLocked(); err != nil {
		// Keep the in-memory entry: the engine must still avoid the pair
		// for the rest of this process lifetime.
		s.logger.Error(ctx, "blacklist flush failed", "symbol", symbol, "error", err)
		return apperror.Wrap(err, apperror.CodeBlacklistPersist, symbol)
	}

	s.logger.Info(ctx, "symbol blacklisted", "symbol", symbol, "total", len(s.symbols))
	return nil
}

func (s *Store) flushLocked() error {
	list := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		list = append(list, sym)
	}
	sort.Strings(list)

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".blacklist-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}
