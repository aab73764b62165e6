package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/models"
)

// RuleModel is the persistence model for a recurring rule.
// Amounts are stored as text so sqlite keeps them exact.
type RuleModel struct {
	ID        string          `gorm:"primaryKey;size:36"`
	Name      string          `gorm:"size:200;not null"`
	Type      string          `gorm:"size:16;not null"`
	Amount    decimal.Decimal `gorm:"type:text;not null"`
	Category  string          `gorm:"size:100"`
	Person    *string         `gorm:"size:100"`
	Frequency string          `gorm:"size:16;not null"`
	StartDate time.Time       `gorm:"not null"`
	EndDate   *time.Time
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM
func (RuleModel) TableName() string {
	return "recurring_rules"
}

// ToDomain converts the persistence model to a RecurringRule
func (m *RuleModel) ToDomain() *models.RecurringRule {
	rule := &models.RecurringRule{
		ID:        m.ID,
		Name:      m.Name,
		Type:      models.TransactionType(m.Type),
		Amount:    m.Amount,
		Category:  m.Category,
		Person:    m.Person,
		Frequency: models.Frequency(m.Frequency),
		StartDate: m.StartDate.UTC(),
		Notes:     m.Notes,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
	if m.EndDate != nil {
		end := m.EndDate.UTC()
		rule.EndDate = &end
	}
	return rule
}

// RuleModelFromDomain builds the persistence model for r
func RuleModelFromDomain(r *models.RecurringRule) *RuleModel {
	return &RuleModel{
		ID:        r.ID,
		Name:      r.Name,
		Type:      string(r.Type),
		Amount:    r.Amount,
		Category:  r.Category,
		Person:    r.Person,
		Frequency: string(r.Frequency),
		StartDate: models.Day(r.StartDate),
		EndDate:   dayPtr(r.EndDate),
		Notes:     r.Notes,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// EntryModel is the persistence model for a ledger entry
type EntryModel struct {
	ID            string          `gorm:"primaryKey;size:36"`
	Amount        decimal.Decimal `gorm:"type:text;not null"`
	Date          time.Time       `gorm:"not null;index"`
	Category      string          `gorm:"size:100"`
	Person        *string         `gorm:"size:100"`
	Type          string          `gorm:"size:16;not null"`
	Notes         string
	RuleID        string     `gorm:"size:36;index:idx_ledger_coverage,priority:1"`
	CoverageStart *time.Time `gorm:"index:idx_ledger_coverage,priority:2"`
	CoverageEnd   *time.Time
	CreatedAt     time.Time
}

// TableName returns the table name for GORM
func (EntryModel) TableName() string {
	return "ledger_entries"
}

// ToDomain converts the persistence model to a LedgerEntry
func (m *EntryModel) ToDomain() models.LedgerEntry {
	return models.LedgerEntry{
		ID:            m.ID,
		Amount:        m.Amount,
		Date:          m.Date.UTC(),
		Category:      m.Category,
		Person:        m.Person,
		Type:          models.TransactionType(m.Type),
		Notes:         m.Notes,
		RuleID:        m.RuleID,
		CoverageStart: utcPtr(m.CoverageStart),
		CoverageEnd:   utcPtr(m.CoverageEnd),
		CreatedAt:     m.CreatedAt.UTC(),
	}
}

// EntryModelFromDomain builds the persistence model for e
func EntryModelFromDomain(e models.LedgerEntry) *EntryModel {
	return &EntryModel{
		ID:            e.ID,
		Amount:        e.Amount,
		Date:          models.Day(e.Date),
		Category:      e.Category,
		Person:        e.Person,
		Type:          string(e.Type),
		Notes:         e.Notes,
		RuleID:        e.RuleID,
		CoverageStart: dayPtr(e.CoverageStart),
		CoverageEnd:   dayPtr(e.CoverageEnd),
		CreatedAt:     e.CreatedAt,
	}
}

// CategoryModel is the persistence model for a directory category
type CategoryModel struct {
	ID   string `gorm:"primaryKey;size:36"`
	Name string `gorm:"size:100;not null"`
}

// TableName returns the table name for GORM
func (CategoryModel) TableName() string {
	return "categories"
}

// PersonModel is the persistence model for a directory person
type PersonModel struct {
	ID   string `gorm:"primaryKey;size:36"`
	Name string `gorm:"size:100;not null"`
}

// TableName returns the table name for GORM
func (PersonModel) TableName() string {
	return "people"
}

func dayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := models.Day(*t)
	return &d
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
