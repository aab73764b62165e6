// Package ledger stores recurring rules, ledger entries and the
// category/person directory, either as JSON documents in the data directory
// or in a sqlite database.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tally/internal/models"
	"tally/internal/services/storage"
)

const (
	rulesFile     = "rules.json"
	ledgerFile    = "ledger.json"
	directoryFile = "directory.json"
)

type directoryDoc struct {
	Categories []models.Category `json:"categories"`
	People     []models.Person   `json:"people"`
}

// FileStore keeps each collection in its own JSON document. Documents are
// read on every call so that a locked storage surfaces storage.ErrLocked
// instead of serving a stale cache.
type FileStore struct {
	storage *storage.Storage
	mu      sync.RWMutex
	now     func() time.Time
}

// NewFileStore creates a FileStore on top of s
func NewFileStore(s *storage.Storage) *FileStore {
	return &FileStore{storage: s, now: time.Now}
}

func (s *FileStore) load(name string, v any) error {
	path := s.storage.Path(name)
	if !s.storage.Exists(path) {
		return nil
	}
	data, err := s.storage.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := s.storage.WriteFile(s.storage.Path(name), append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) rules() ([]models.RecurringRule, error) {
	rules := []models.RecurringRule{}
	if err := s.load(rulesFile, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// GetRule returns the rule with the given id
func (s *FileStore) GetRule(ctx context.Context, id string) (*models.RecurringRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules, err := s.rules()
	if err != nil {
		return nil, err
	}
	for i := range rules {
		if rules[i].ID == id {
			return &rules[i], nil
		}
	}
	return nil, fmt.Errorf("rule %s: %w", id, models.ErrNotFound)
}

// ListRules returns all rules ordered by name
func (s *FileStore) ListRules(ctx context.Context) ([]models.RecurringRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules, err := s.rules()
	if err != nil {
		return nil, err
	}
	sortRules(rules)
	return rules, nil
}

// SaveRule inserts rule, or replaces the stored rule with the same id
func (s *FileStore) SaveRule(ctx context.Context, rule *models.RecurringRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules, err := s.rules()
	if err != nil {
		return err
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	replaced := false
	for i := range rules {
		if rules[i].ID == rule.ID {
			rules[i] = *rule
			replaced = true
			break
		}
	}
	if !replaced {
		rules = append(rules, *rule)
	}
	return s.save(rulesFile, rules)
}

// DeleteRule removes a rule. Entries generated from it are kept.
func (s *FileStore) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules, err := s.rules()
	if err != nil {
		return err
	}
	for i := range rules {
		if rules[i].ID == id {
			rules = append(rules[:i], rules[i+1:]...)
			return s.save(rulesFile, rules)
		}
	}
	return fmt.Errorf("rule %s: %w", id, models.ErrNotFound)
}

func (s *FileStore) entries() ([]models.LedgerEntry, error) {
	entries := []models.LedgerEntry{}
	if err := s.load(ledgerFile, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Create appends a ledger entry, assigning its id and creation time
func (s *FileStore) Create(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return models.LedgerEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.entries()
	if err != nil {
		return models.LedgerEntry{}, err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = s.now().UTC()

	entries = append(entries, entry)
	if err := s.save(ledgerFile, entries); err != nil {
		return models.LedgerEntry{}, err
	}
	return entry, nil
}

// FindByCoverage returns the entry generated for ruleID whose coverage starts
// on coverageStart, or nil when there is none
func (s *FileStore) FindByCoverage(ctx context.Context, ruleID string, coverageStart time.Time) (*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.entries()
	if err != nil {
		return nil, err
	}
	key := models.CoverageKey(ruleID, coverageStart)
	for i := range entries {
		if entries[i].CoverageKey() == key {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// ListEntries returns ledger entries oldest first, limited to one rule when
// ruleID is set
func (s *FileStore) ListEntries(ctx context.Context, ruleID string) ([]models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.entries()
	if err != nil {
		return nil, err
	}
	set := models.NewLedgerSet(entries)
	if ruleID != "" {
		set = set.FilterByRule(ruleID)
	}
	if set.Len() == 0 {
		return []models.LedgerEntry{}, nil
	}
	return set.SortByDate().Entries, nil
}

func (s *FileStore) directory() (directoryDoc, error) {
	doc := directoryDoc{Categories: []models.Category{}, People: []models.Person{}}
	err := s.load(directoryFile, &doc)
	return doc, err
}

// Categories returns the category directory ordered by name
func (s *FileStore) Categories(ctx context.Context) ([]models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.directory()
	if err != nil {
		return nil, err
	}
	sort.Slice(doc.Categories, func(i, j int) bool {
		return strings.ToLower(doc.Categories[i].Name) < strings.ToLower(doc.Categories[j].Name)
	})
	return doc.Categories, nil
}

// People returns the person directory ordered by name
func (s *FileStore) People(ctx context.Context) ([]models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.directory()
	if err != nil {
		return nil, err
	}
	sort.Slice(doc.People, func(i, j int) bool {
		return strings.ToLower(doc.People[i].Name) < strings.ToLower(doc.People[j].Name)
	})
	return doc.People, nil
}

// AddCategory adds a category to the directory
func (s *FileStore) AddCategory(ctx context.Context, name string) (models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.directory()
	if err != nil {
		return models.Category{}, err
	}
	c := models.Category{ID: uuid.NewString(), Name: strings.TrimSpace(name)}
	doc.Categories = append(doc.Categories, c)
	if err := s.save(directoryFile, doc); err != nil {
		return models.Category{}, err
	}
	return c, nil
}

// AddPerson adds a person to the directory
func (s *FileStore) AddPerson(ctx context.Context, name string) (models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.directory()
	if err != nil {
		return models.Person{}, err
	}
	p := models.Person{ID: uuid.NewString(), Name: strings.TrimSpace(name)}
	doc.People = append(doc.People, p)
	if err := s.save(directoryFile, doc); err != nil {
		return models.Person{}, err
	}
	return p, nil
}

// Close is a no-op; documents are written through on every change
func (s *FileStore) Close() error {
	return nil
}

func sortRules(rules []models.RecurringRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return strings.ToLower(rules[i].Name) < strings.ToLower(rules[j].Name)
	})
}
