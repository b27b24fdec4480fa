package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/stock-packs/internal/inventory"
)

const defaultFileDebounce = 150 * time.Millisecond

// fileDocument is the on-disk YAML layout.
type fileDocument struct {
	Records []inventory.Record `yaml:"records"`
}

// FileStorage keeps records in memory and mirrors every write to a YAML file.
// External edits to the file replace the in-memory records wholesale.
type FileStorage struct {
	*MemoryStorage

	path     string
	logger   *zap.Logger
	debounce time.Duration
	readFile func(string) ([]byte, error)

	writeMu     sync.Mutex
	lastWritten []byte
}

var (
	_ Storage = (*FileStorage)(nil)
	_ Watcher = (*FileStorage)(nil)
)

// FileOption configures a FileStorage.
type FileOption func(*FileStorage)

// WithFileLogger sets the logger used for reload warnings.
func WithFileLogger(logger *zap.Logger) FileOption {
	return func(s *FileStorage) {
		s.logger = logger
	}
}

// WithFileDebounce sets how long the watcher waits for edits to settle.
func WithFileDebounce(d time.Duration) FileOption {
	return func(s *FileStorage) {
		s.debounce = d
	}
}

// OpenFile loads path, creating an empty inventory file if it does not exist.
func OpenFile(path string, opts ...FileOption) (*FileStorage, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	s := &FileStorage{
		MemoryStorage: NewMemoryStorage(),
		path:          abs,
		logger:        zap.NewNop(),
		debounce:      defaultFileDebounce,
		readFile:      os.ReadFile,
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := os.ReadFile(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
		if err := s.persist(); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", abs, err)
	}

	if err := s.load(data); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the absolute path of the backing file.
func (s *FileStorage) Path() string {
	return s.path
}

func (s *FileStorage) Create(ctx context.Context, rec inventory.Record) (inventory.Record, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	created, err := s.MemoryStorage.Create(ctx, rec)
	if err != nil {
		return inventory.Record{}, err
	}
	return created, s.persistLocked()
}

func (s *FileStorage) Update(ctx context.Context, rec inventory.Record) (inventory.Record, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	updated, err := s.MemoryStorage.Update(ctx, rec)
	if err != nil {
		return inventory.Record{}, err
	}
	return updated, s.persistLocked()
}

func (s *FileStorage) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.MemoryStorage.Delete(ctx, id); err != nil {
		return err
	}
	return s.persistLocked()
}

func (s *FileStorage) SetQuantity(ctx context.Context, id string, quantity int) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.MemoryStorage.SetQuantity(ctx, id, quantity); err != nil {
		return err
	}
	return s.persistLocked()
}

func (s *FileStorage) SetQuantities(ctx context.Context, updates []inventory.QuantityUpdate) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.MemoryStorage.SetQuantities(ctx, updates); err != nil {
		return err
	}
	return s.persistLocked()
}

func (s *FileStorage) AdjustQuantity(ctx context.Context, id string, delta int) (inventory.Record, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec, err := s.MemoryStorage.AdjustQuantity(ctx, id, delta)
	if err != nil {
		return inventory.Record{}, err
	}
	return rec, s.persistLocked()
}

// Watch publishes in-process changes and reloads the file when it is edited
// outside the service.
func (s *FileStorage) Watch(ctx context.Context, publish func([]inventory.Record)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.MemoryStorage.Watch(gctx, publish)
	})
	g.Go(func() error {
		return s.watchFile(gctx, watcher)
	})
	return g.Wait()
}

func (s *FileStorage) watchFile(ctx context.Context, watcher *fsnotify.Watcher) error {
	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			settle = time.After(s.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("inventory file watcher error", zap.String("path", s.path), zap.Error(err))

		case <-settle:
			settle = nil
			if err := s.reload(); err != nil {
				s.logger.Warn("inventory file reload failed", zap.String("path", s.path), zap.Error(err))
			}
		}
	}
}

// reload reads the file under writeMu so a concurrent write cannot land
// between the read and the comparison with lastWritten.
func (s *FileStorage) reload() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	data, err := s.readFile(s.path)
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	if bytes.Equal(data, s.lastWritten) {
		return nil
	}
	if err := s.loadLocked(data); err != nil {
		return err
	}
	s.logger.Info("inventory file reloaded", zap.String("path", s.path))
	return nil
}

func (s *FileStorage) load(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.loadLocked(data)
}

func (s *FileStorage) loadLocked(data []byte) error {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}

	assigned := false
	seen := make(map[string]struct{}, len(doc.Records))
	for i := range doc.Records {
		rec := &doc.Records[i]
		if rec.ID == "" {
			rec.ID = newID()
			assigned = true
		}
		if _, dup := seen[rec.ID]; dup {
			return fmt.Errorf("parse %s: %w: duplicate id %s", s.path, inventory.ErrInvalidRecord, rec.ID)
		}
		seen[rec.ID] = struct{}{}
		if rec.CollarStyle == "" {
			rec.CollarStyle = inventory.DefaultCollarStyle
		}
		if rec.Quantity < 0 {
			rec.Quantity = 0
		}
	}

	s.MemoryStorage.Replace(doc.Records)
	s.lastWritten = data
	if assigned {
		return s.persistLocked()
	}
	return nil
}

func (s *FileStorage) persist() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.persistLocked()
}

// persistLocked writes the current records through a temp file and rename so
// readers never observe a partial document.
func (s *FileStorage) persistLocked() error {
	records, _ := s.MemoryStorage.List(context.Background())
	data, err := yaml.Marshal(fileDocument{Records: records})
	if err != nil {
		return fmt.Errorf("encode inventory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".inventory-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}

	s.lastWritten = data
	return nil
}
