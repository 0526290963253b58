package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// FileStore keeps one YAML document per player under <root>/players, named
// by a slug of the player name, and one per account under <root>/accounts.
// Writes go through a temp file and an atomic rename so a crash never
// leaves a half-written record.
type FileStore struct {
	root string

	mu     sync.Mutex
	nextID int64
	// name_lower → player id and id → file slug, rebuilt from disk at startup
	names map[string]int64
	slugs map[int64]string
}

// NewFileStore opens (creating if needed) a store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	s := &FileStore{root: dir, names: make(map[string]int64), slugs: make(map[int64]string)}
	for _, sub := range []string{s.playersDir(), s.accountsDir()} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir %s: %w", sub, err)
		}
	}
	if err := s.scan(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) playersDir() string  { return filepath.Join(s.root, "players") }
func (s *FileStore) accountsDir() string { return filepath.Join(s.root, "accounts") }

func (s *FileStore) playerPath(slug string) string {
	return filepath.Join(s.playersDir(), slug+".yaml")
}

// slugify maps a player name to a safe filename: lowercased, with runs of
// anything outside [a-z0-9] collapsed to a single dash.
func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func (s *FileStore) accountPath(nameLower string) string {
	return filepath.Join(s.accountsDir(), nameLower+".yaml")
}

// scan rebuilds the name index and the id high-water mark.
func (s *FileStore) scan() error {
	entries, err := os.ReadDir(s.playersDir())
	if err != nil {
		return fmt.Errorf("scan players dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		rec, err := s.readPlayer(filepath.Join(s.playersDir(), e.Name()))
		if err != nil {
			return fmt.Errorf("read player file %s: %w", e.Name(), err)
		}
		s.names[rec.NameLower] = rec.ID
		s.slugs[rec.ID] = strings.TrimSuffix(e.Name(), ".yaml")
		if rec.ID > s.nextID {
			s.nextID = rec.ID
		}
	}
	return nil
}

func (s *FileStore) readPlayer(path string) (*PlayerRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec PlayerRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func writeAtomic(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func (s *FileStore) FindByID(_ context.Context, id int64) (*PlayerRecord, error) {
	s.mu.Lock()
	slug, ok := s.slugs[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	rec, err := s.readPlayer(s.playerPath(slug))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find player %d: %w", id, err)
	}
	return rec, nil
}

func (s *FileStore) FindByNameLower(ctx context.Context, nameLower string) (*PlayerRecord, error) {
	s.mu.Lock()
	id, ok := s.names[nameLower]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.FindByID(ctx, id)
}

func (s *FileStore) Create(_ context.Context, rec *PlayerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.names[rec.NameLower]; taken {
		return fmt.Errorf("create player %q: name already exists", rec.Name)
	}
	slug := slugify(rec.Name)
	s.nextID++
	rec.ID = s.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.UpdatedAt = rec.CreatedAt
	if err := writeAtomic(s.playerPath(slug), rec); err != nil {
		s.nextID--
		return err
	}
	s.names[rec.NameLower] = rec.ID
	s.slugs[rec.ID] = slug
	return nil
}

func (s *FileStore) Save(_ context.Context, rec *PlayerRecord) error {
	if rec.ID == 0 {
		return fmt.Errorf("save player %q: no id assigned", rec.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	slug, ok := s.slugs[rec.ID]
	if !ok {
		slug = slugify(rec.Name)
	}
	rec.UpdatedAt = time.Now().UTC()
	if err := writeAtomic(s.playerPath(slug), rec); err != nil {
		return err
	}
	s.names[rec.NameLower] = rec.ID
	s.slugs[rec.ID] = slug
	return nil
}

func (s *FileStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slug, ok := s.slugs[id]
	if !ok {
		return ErrNotFound
	}
	rec, err := s.readPlayer(s.playerPath(slug))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete player %d: %w", id, err)
	}
	if err := os.Remove(s.playerPath(slug)); err != nil {
		return fmt.Errorf("delete player %d: %w", id, err)
	}
	delete(s.names, rec.NameLower)
	delete(s.slugs, id)
	return nil
}

func (s *FileStore) FindAccount(_ context.Context, nameLower string) (*AccountRecord, error) {
	data, err := os.ReadFile(s.accountPath(nameLower))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account %q: %w", nameLower, err)
	}
	var acct AccountRecord
	if err := yaml.Unmarshal(data, &acct); err != nil {
		return nil, fmt.Errorf("find account %q: %w", nameLower, err)
	}
	return &acct, nil
}

func (s *FileStore) CreateAccount(_ context.Context, acct *AccountRecord) error {
	if _, err := os.Stat(s.accountPath(acct.NameLower)); err == nil {
		return fmt.Errorf("create account %q: already exists", acct.NameLower)
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}
	return writeAtomic(s.accountPath(acct.NameLower), acct)
}

func (s *FileStore) DeleteAccount(_ context.Context, nameLower string) error {
	err := os.Remove(s.accountPath(nameLower))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete account %q: %w", nameLower, err)
	}
	return nil
}
