package rules

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	httpx "tally/internal/http"
	"tally/internal/logger"
	"tally/internal/models"
	"tally/internal/services/recurring"
	"tally/internal/services/schedule"
)

var svc *recurring.Service

// Initialize sets up the rules package with required dependencies
func Initialize(s *recurring.Service) {
	svc = s
}

// RegisterRoutes registers rule, ledger and directory routes
func RegisterRoutes(r chi.Router) {
	r.Route("/api/rules", func(r chi.Router) {
		r.Get("/", handleListRules)
		r.Post("/", handleCreateRule)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handleGetRule)
			r.Put("/", handleUpdateRule)
			r.Delete("/", handleDeleteRule)
			r.Get("/occurrences", handleOccurrences)
			r.Post("/materialize", handleMaterialize)
		})
	})

	r.Get("/api/ledger", handleLedger)

	r.Get("/api/categories", handleCategories)
	r.Post("/api/categories", handleAddCategory)
	r.Get("/api/people", handlePeople)
	r.Post("/api/people", handleAddPerson)
}

// ruleInput is the request body for creating or replacing a rule.
// Dates are calendar days (YYYY-MM-DD).
type ruleInput struct {
	Name      string                 `json:"name"`
	Type      models.TransactionType `json:"type"`
	Amount    decimal.Decimal        `json:"amount"`
	Category  string                 `json:"category"`
	Person    *string                `json:"person,omitempty"`
	Frequency models.Frequency       `json:"frequency"`
	StartDate string                 `json:"start_date"`
	EndDate   *string                `json:"end_date,omitempty"`
	Notes     string                 `json:"notes"`
}

func (in ruleInput) toRule() (*models.RecurringRule, error) {
	rule := &models.RecurringRule{
		Name:      in.Name,
		Type:      in.Type,
		Amount:    in.Amount,
		Category:  strings.TrimSpace(in.Category),
		Person:    in.Person,
		Frequency: models.Frequency(strings.ToLower(string(in.Frequency))),
		Notes:     in.Notes,
	}
	if in.StartDate != "" {
		start, err := models.ParseDay(in.StartDate)
		if err != nil {
			return nil, fmt.Errorf("%w: start_date: %v", httpx.ErrBadRequest, err)
		}
		rule.StartDate = start
	}
	if in.EndDate != nil && *in.EndDate != "" {
		end, err := models.ParseDay(*in.EndDate)
		if err != nil {
			return nil, fmt.Errorf("%w: end_date: %v", httpx.ErrBadRequest, err)
		}
		rule.EndDate = &end
	}
	return rule, nil
}

func decodeRule(w http.ResponseWriter, r *http.Request) (*models.RecurringRule, error) {
	var in ruleInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		return nil, err
	}
	return in.toRule()
}

func handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := svc.ListRules(r.Context())
	if err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func handleCreateRule(w http.ResponseWriter, r *http.Request) {
	rule, err := decodeRule(w, r)
	if err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	created, err := svc.CreateRule(r.Context(), rule)
	if err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, created)
}

func handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := svc.GetRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rule)
}

func handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	rule, err := decodeRule(w, r)
	if err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	updated, err := svc.UpdateRule(r.Context(), chi.URLParam(r, "id"), rule)
	if err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updated)
}

func handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := svc.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parsePreview reads count, anchor, today, min, max, from, to and selected
// from the query string
func parsePreview(r *http.Request) (recurring.PreviewRequest, error) {
	q := r.URL.Query()
	var req recurring.PreviewRequest
	var err error

	if req.Count, err = httpx.QueryInt(q, "count", 0); err != nil {
		return req, err
	}
	if req.AnchorToToday, err = httpx.QueryBool(q, "anchor"); err != nil {
		return req, err
	}
	if req.Today, err = httpx.QueryDay(q, "today"); err != nil {
		return req, err
	}
	if req.Criteria.MinAmount, err = httpx.QueryDecimal(q, "min"); err != nil {
		return req, err
	}
	if req.Criteria.MaxAmount, err = httpx.QueryDecimal(q, "max"); err != nil {
		return req, err
	}
	if req.Criteria.StartDate, err = httpx.QueryDay(q, "from"); err != nil {
		return req, err
	}
	if req.Criteria.EndDate, err = httpx.QueryDay(q, "to"); err != nil {
		return req, err
	}
	if req.Selected, err = httpx.QueryIndices(q, "selected"); err != nil {
		return req, err
	}
	return req, nil
}

func handleOccurrences(w http.ResponseWriter, r *http.Request) {
	req, err := parsePreview(r)
	if err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	preview, err := svc.Preview(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, preview)
}

type materializeInput struct {
	Count        int     `json:"count"`
	Anchor       bool    `json:"anchor"`
	Today        *string `json:"today,omitempty"`
	Indices      []int   `json:"indices"`
	SkipExisting bool    `json:"skip_existing"`
}

func handleMaterialize(w http.ResponseWriter, r *http.Request) {
	var in materializeInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	if len(in.Indices) == 0 {
		httpx.ErrorResponse(w, r, &schedule.ValidationError{Field: "indices", Message: "select at least one occurrence"})
		return
	}

	req := recurring.MaterializeRequest{
		GenerateParams: recurring.GenerateParams{Count: in.Count, AnchorToToday: in.Anchor},
		Indices:        in.Indices,
		SkipExisting:   in.SkipExisting,
	}
	if in.Today != nil && *in.Today != "" {
		today, err := models.ParseDay(*in.Today)
		if err != nil {
			httpx.ErrorResponse(w, r, fmt.Errorf("%w: today: %v", httpx.ErrBadRequest, err))
			return
		}
		req.Today = &today
	}

	report, err := svc.Materialize(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Info("materialize finished",
		zap.String("rule_id", report.RuleID),
		zap.String("result", report.String()))

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"summary":  report.String(),
		"complete": report.Complete(),
		"report":   report,
	})
}

// handleLedger lists ledger entries, optionally narrowed by rule, type,
// category and a from/to date range
func handleLedger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := svc.ListEntries(r.Context(), q.Get("rule"))
	if err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}

	set := models.NewLedgerSet(entries)
	start, end, err := httpx.ParseDateRange(q, set.MinDate(), set.MaxDate())
	if err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	if set.Len() > 0 {
		set = set.FilterByDateRange(start, end)
	}
	if t := q.Get("type"); t != "" {
		set = set.FilterByType(models.TransactionType(strings.ToLower(t)))
	}
	if c := q.Get("category"); c != "" {
		set = set.FilterByCategory(c)
	}

	out := set.Entries
	if out == nil {
		out = []models.LedgerEntry{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"count":   set.Len(),
		"total":   set.SumAmount().StringFixed(schedule.AmountPlaces),
	})
}

type nameInput struct {
	Name string `json:"name"`
}

func handleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := svc.Categories(r.Context())
	if err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"categories": cats})
}

func handleAddCategory(w http.ResponseWriter, r *http.Request) {
	var in nameInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	c, err := svc.AddCategory(r.Context(), in.Name)
	if err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, c)
}

func handlePeople(w http.ResponseWriter, r *http.Request) {
	people, err := svc.People(r.Context())
	if err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"people": people})
}

func handleAddPerson(w http.ResponseWriter, r *http.Request) {
	var in nameInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	p, err := svc.AddPerson(r.Context(), in.Name)
	if err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}
