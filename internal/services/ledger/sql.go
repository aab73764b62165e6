package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tally/internal/logger"
	"tally/internal/models"
)

// SQLStore keeps rules, entries and the directory in a sqlite database
type SQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the sqlite database at path and
// migrates it
func OpenSQLite(path string, log *zap.Logger, level string) (*SQLStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.NewGormLogger(log, logger.GormLevel(level)),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return NewSQLStore(db)
}

// NewSQLStore wraps db and migrates the schema
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	// one writer; also keeps a ":memory:" database on a single connection
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&RuleModel{}, &EntryModel{}, &CategoryModel{}, &PersonModel{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetRule returns the rule with the given id
func (s *SQLStore) GetRule(ctx context.Context, id string) (*models.RecurringRule, error) {
	var m RuleModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("rule %s: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// ListRules returns all rules ordered by name
func (s *SQLStore) ListRules(ctx context.Context) ([]models.RecurringRule, error) {
	var rows []RuleModel
	if err := s.db.WithContext(ctx).Order("lower(name)").Find(&rows).Error; err != nil {
		return nil, err
	}
	rules := make([]models.RecurringRule, len(rows))
	for i := range rows {
		rules[i] = *rows[i].ToDomain()
	}
	return rules, nil
}

// SaveRule inserts rule, or replaces the stored rule with the same id
func (s *SQLStore) SaveRule(ctx context.Context, rule *models.RecurringRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Save(RuleModelFromDomain(rule)).Error
}

// DeleteRule removes a rule. Entries generated from it are kept.
func (s *SQLStore) DeleteRule(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&RuleModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("rule %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// Create inserts a ledger entry, assigning its id and creation time
func (s *SQLStore) Create(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = s.now().UTC()

	m := EntryModelFromDomain(entry)
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return models.LedgerEntry{}, err
	}
	return m.ToDomain(), nil
}

// FindByCoverage returns the entry generated for ruleID whose coverage starts
// on coverageStart, or nil when there is none
func (s *SQLStore) FindByCoverage(ctx context.Context, ruleID string, coverageStart time.Time) (*models.LedgerEntry, error) {
	var rows []EntryModel
	err := s.db.WithContext(ctx).
		Where("rule_id = ? AND coverage_start = ?", ruleID, models.Day(coverageStart)).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	entry := rows[0].ToDomain()
	return &entry, nil
}

// ListEntries returns ledger entries oldest first, limited to one rule when
// ruleID is set
func (s *SQLStore) ListEntries(ctx context.Context, ruleID string) ([]models.LedgerEntry, error) {
	q := s.db.WithContext(ctx).Order("date").Order("created_at")
	if ruleID != "" {
		q = q.Where("rule_id = ?", ruleID)
	}
	var rows []EntryModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]models.LedgerEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, nil
}

// Categories returns the category directory ordered by name
func (s *SQLStore) Categories(ctx context.Context) ([]models.Category, error) {
	var rows []CategoryModel
	if err := s.db.WithContext(ctx).Order("lower(name)").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Category, len(rows))
	for i, r := range rows {
		out[i] = models.Category{ID: r.ID, Name: r.Name}
	}
	return out, nil
}

// People returns the person directory ordered by name
func (s *SQLStore) People(ctx context.Context) ([]models.Person, error) {
	var rows []PersonModel
	if err := s.db.WithContext(ctx).Order("lower(name)").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Person, len(rows))
	for i, r := range rows {
		out[i] = models.Person{ID: r.ID, Name: r.Name}
	}
	return out, nil
}

// AddCategory adds a category to the directory
func (s *SQLStore) AddCategory(ctx context.Context, name string) (models.Category, error) {
	row := CategoryModel{ID: uuid.NewString(), Name: strings.TrimSpace(name)}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Category{}, err
	}
	return models.Category{ID: row.ID, Name: row.Name}, nil
}

// AddPerson adds a person to the directory
func (s *SQLStore) AddPerson(ctx context.Context, name string) (models.Person, error) {
	row := PersonModel{ID: uuid.NewString(), Name: strings.TrimSpace(name)}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Person{}, err
	}
	return models.Person{ID: row.ID, Name: row.Name}, nil
}
