// Package recurring ties the schedule engine to rule and ledger storage:
// previews of upcoming occurrences, materialization into the ledger, and
// rule maintenance.
package recurring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"tally/internal/models"
	"tally/internal/services/materializer"
	"tally/internal/services/schedule"
)

var (
	// ErrNotFound is returned for unknown rule ids
	ErrNotFound = models.ErrNotFound

	// ErrBatchInProgress is returned when a rule is already being materialized
	ErrBatchInProgress = errors.New("a materialization batch is already running for this rule")
)

// RuleRepository stores recurring rules
type RuleRepository interface {
	GetRule(ctx context.Context, id string) (*models.RecurringRule, error)
	ListRules(ctx context.Context) ([]models.RecurringRule, error)
	SaveRule(ctx context.Context, rule *models.RecurringRule) error
	DeleteRule(ctx context.Context, id string) error
}

// LedgerStore stores ledger entries
type LedgerStore interface {
	materializer.LedgerStore
	ListEntries(ctx context.Context, ruleID string) ([]models.LedgerEntry, error)
}

// Directory holds the categories and people shown next to rules
type Directory interface {
	Categories(ctx context.Context) ([]models.Category, error)
	People(ctx context.Context) ([]models.Person, error)
	AddCategory(ctx context.Context, name string) (models.Category, error)
	AddPerson(ctx context.Context, name string) (models.Person, error)
}

// Store is everything the service persists
type Store interface {
	RuleRepository
	LedgerStore
	Directory
}

// Recorder observes engine activity, e.g. for metrics
type Recorder interface {
	RecordPreview(generated int)
	RecordMaterialization(report *materializer.Report)
}

type nopRecorder struct{}

func (nopRecorder) RecordPreview(int) {}
func (nopRecorder) RecordMaterialization(*materializer.Report) {}

// Limits bounds generation requests
type Limits struct {
	DefaultCount int
	MaxCount     int
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now as the source of "today"
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithRecorder reports previews and materialization batches to r
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Service runs previews and materialization batches for stored rules
type Service struct {
	store        Store
	materializer *materializer.Materializer
	validate     *validator.Validate
	limits       Limits
	now          func() time.Time
	recorder     Recorder
	log          *zap.Logger

	mu      sync.Mutex
	running map[string]bool
}

// NewService creates a Service backed by store
func NewService(store Store, limits Limits, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if limits.MaxCount <= 0 || limits.MaxCount > schedule.MaxCount {
		limits.MaxCount = schedule.MaxCount
	}
	if limits.DefaultCount <= 0 || limits.DefaultCount > limits.MaxCount {
		limits.DefaultCount = min(12, limits.MaxCount)
	}

	s := &Service{
		store:        store,
		materializer: materializer.New(store, log),
		validate:     newValidator(),
		limits:       limits,
		now:          time.Now,
		recorder:     nopRecorder{},
		log:          log.Named("recurring"),
		running:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateParams are the generation inputs shared by preview and materialize
type GenerateParams struct {
	Count         int        `json:"count"`
	AnchorToToday bool       `json:"anchor"`
	Today         *time.Time `json:"today,omitempty"`
}

// PreviewRequest asks for a filtered, summarized occurrence sequence
type PreviewRequest struct {
	GenerateParams
	Criteria schedule.Criteria
	Selected []int
}

// Preview is a rule's upcoming occurrences after filtering
type Preview struct {
	Rule               *models.RecurringRule `json:"rule"`
	Frequency          models.Frequency      `json:"frequency"`
	FrequencyDefaulted bool                  `json:"frequency_defaulted,omitempty"`
	CategoryName       string                `json:"category_name,omitempty"`
	PersonName         string                `json:"person_name,omitempty"`
	Today              time.Time             `json:"today"`
	Generated          int                   `json:"generated"`
	Occurrences        []models.Occurrence   `json:"occurrences"`
	Summary            schedule.Summary      `json:"summary"`
}

// MaterializeRequest selects occurrences to write to the ledger. Indices
// refer to the sequence generated with the same GenerateParams.
type MaterializeRequest struct {
	GenerateParams
	Indices      []int `json:"indices"`
	SkipExisting bool  `json:"skip_existing"`
}

// Today returns the service's current calendar day
func (s *Service) Today() time.Time {
	return models.Day(s.now())
}

func (s *Service) options(p GenerateParams) (schedule.Options, error) {
	count := p.Count
	if count == 0 {
		count = s.limits.DefaultCount
	}
	if count > s.limits.MaxCount {
		return schedule.Options{}, &schedule.ValidationError{
			Field:   "count",
			Message: fmt.Sprintf("must be at most %d, got %d", s.limits.MaxCount, count),
		}
	}

	today := s.Today()
	if p.Today != nil {
		today = models.Day(*p.Today)
	}
	return schedule.Options{Count: count, AnchorToToday: p.AnchorToToday, Today: today}, nil
}

func (s *Service) generate(rule *models.RecurringRule, p GenerateParams) ([]models.Occurrence, schedule.Options, error) {
	opts, err := s.options(p)
	if err != nil {
		return nil, opts, err
	}
	if resolved, defaulted := schedule.Resolve(rule.Frequency); defaulted {
		s.log.Warn("unknown frequency, using default",
			zap.String("rule_id", rule.ID),
			zap.String("frequency", string(rule.Frequency)),
			zap.String("default", string(resolved)))
	}
	occs, err := schedule.Generate(rule, opts)
	if err != nil {
		return nil, opts, fmt.Errorf("generate occurrences for rule %s: %w", rule.ID, err)
	}
	return occs, opts, nil
}

// Preview generates, filters and summarizes a rule's occurrences. Nothing is
// written.
func (s *Service) Preview(ctx context.Context, ruleID string, req PreviewRequest) (*Preview, error) {
	rule, err := s.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	occs, opts, err := s.generate(rule, req.GenerateParams)
	if err != nil {
		return nil, err
	}
	filtered := schedule.Filter(occs, req.Criteria)

	resolved, defaulted := schedule.Resolve(rule.Frequency)
	p := &Preview{
		Rule:               rule,
		Frequency:          resolved,
		FrequencyDefaulted: defaulted,
		Today:              opts.Today,
		Generated:          len(occs),
		Occurrences:        filtered,
		Summary:            schedule.Summarize(filtered, schedule.NewSelection(req.Selected...)),
	}
	p.CategoryName, p.PersonName = s.displayNames(ctx, rule)
	s.recorder.RecordPreview(len(occs))
	return p, nil
}

// displayNames resolves a rule's category and person against the directory.
// Lookup failures only cost the display name.
func (s *Service) displayNames(ctx context.Context, rule *models.RecurringRule) (category, person string) {
	category = rule.Category
	if cats, err := s.store.Categories(ctx); err == nil {
		for _, c := range cats {
			if c.ID == rule.Category || strings.EqualFold(c.Name, rule.Category) {
				category = c.Name
				break
			}
		}
	}
	if rule.Person == nil {
		return category, ""
	}
	person = *rule.Person
	if people, err := s.store.People(ctx); err == nil {
		for _, p := range people {
			if p.ID == *rule.Person || strings.EqualFold(p.Name, *rule.Person) {
				person = p.Name
				break
			}
		}
	}
	return category, person
}

// Materialize regenerates a rule's sequence and writes the selected
// occurrences to the ledger. Every index must exist in the sequence or
// nothing is written. Only one batch per rule runs at a time.
func (s *Service) Materialize(ctx context.Context, ruleID string, req MaterializeRequest) (*materializer.Report, error) {
	if !s.acquire(ruleID) {
		return nil, ErrBatchInProgress
	}
	defer s.release(ruleID)

	rule, err := s.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	occs, _, err := s.generate(rule, req.GenerateParams)
	if err != nil {
		return nil, err
	}

	selected, err := pick(occs, req.Indices)
	if err != nil {
		return nil, err
	}

	report := s.materializer.Materialize(ctx, rule, selected, materializer.Options{SkipExisting: req.SkipExisting})
	s.recorder.RecordMaterialization(report)
	return report, nil
}

// pick returns the occurrences at the given indices, ignoring repeats
func pick(occs []models.Occurrence, indices []int) ([]models.Occurrence, error) {
	sel := schedule.NewSelection(indices...)
	var unknown []int
	for i := range sel {
		if i < 0 || i >= len(occs) {
			unknown = append(unknown, i)
		}
	}
	if len(unknown) > 0 {
		sort.Ints(unknown)
		return nil, &schedule.ValidationError{
			Field:   "indices",
			Message: fmt.Sprintf("%v not in the generated sequence of %d occurrences", unknown, len(occs)),
		}
	}

	selected := make([]models.Occurrence, 0, len(sel))
	for _, occ := range occs {
		if sel[occ.Index] {
			selected = append(selected, occ)
		}
	}
	return selected, nil
}

func (s *Service) acquire(ruleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[ruleID] {
		return false
	}
	s.running[ruleID] = true
	return true
}

func (s *Service) release(ruleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, ruleID)
}

// GetRule returns a stored rule
func (s *Service) GetRule(ctx context.Context, id string) (*models.RecurringRule, error) {
	return s.store.GetRule(ctx, id)
}

// ListRules returns every stored rule
func (s *Service) ListRules(ctx context.Context) ([]models.RecurringRule, error) {
	return s.store.ListRules(ctx)
}

// CreateRule validates and stores a new rule with a fresh id
func (s *Service) CreateRule(ctx context.Context, rule *models.RecurringRule) (*models.RecurringRule, error) {
	if err := s.check(rule); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	rule.ID = uuid.NewString()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := s.store.SaveRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("save rule: %w", err)
	}
	s.log.Info("rule created", zap.String("rule_id", rule.ID), zap.String("frequency", string(rule.Frequency)))
	return rule, nil
}

// UpdateRule replaces the stored rule id with rule. Ledger entries already
// generated from it are left alone.
func (s *Service) UpdateRule(ctx context.Context, id string, rule *models.RecurringRule) (*models.RecurringRule, error) {
	existing, err := s.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(rule); err != nil {
		return nil, err
	}
	rule.ID = existing.ID
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = s.now().UTC()

	if err := s.store.SaveRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("save rule: %w", err)
	}
	return rule, nil
}

// DeleteRule removes a rule. Its ledger entries are kept.
func (s *Service) DeleteRule(ctx context.Context, id string) error {
	if err := s.store.DeleteRule(ctx, id); err != nil {
		return err
	}
	s.log.Info("rule deleted", zap.String("rule_id", id))
	return nil
}

// check normalizes rule dates to calendar days and validates the rule
func (s *Service) check(rule *models.RecurringRule) error {
	if rule == nil {
		return &schedule.ValidationError{Field: "rule", Message: "is required"}
	}
	rule.Name = strings.TrimSpace(rule.Name)
	if !rule.StartDate.IsZero() {
		rule.StartDate = models.Day(rule.StartDate)
	}
	if rule.EndDate != nil {
		end := models.Day(*rule.EndDate)
		rule.EndDate = &end
	}

	if err := s.validate.Struct(rule); err != nil {
		return validationError(err)
	}
	return schedule.Validate(rule)
}

// ListEntries returns ledger entries, optionally for one rule
func (s *Service) ListEntries(ctx context.Context, ruleID string) ([]models.LedgerEntry, error) {
	return s.store.ListEntries(ctx, ruleID)
}

// Categories returns the category directory
func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	return s.store.Categories(ctx)
}

// People returns the person directory
func (s *Service) People(ctx context.Context) ([]models.Person, error) {
	return s.store.People(ctx)
}

// AddCategory adds a named category to the directory
func (s *Service) AddCategory(ctx context.Context, name string) (models.Category, error) {
	if strings.TrimSpace(name) == "" {
		return models.Category{}, &schedule.ValidationError{Field: "name", Message: "is required"}
	}
	return s.store.AddCategory(ctx, name)
}

// AddPerson adds a named person to the directory
func (s *Service) AddPerson(ctx context.Context, name string) (models.Person, error) {
	if strings.TrimSpace(name) == "" {
		return models.Person{}, &schedule.ValidationError{Field: "name", Message: "is required"}
	}
	return s.store.AddPerson(ctx, name)
}
