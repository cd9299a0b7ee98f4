package service

import (
	"fmt"
	"math"
	"strings"

	"lead_scoring_backend/internal/scoring/domain"
	"lead_scoring_backend/internal/scoring/features"
	"lead_scoring_backend/platform/apperr"
	"lead_scoring_backend/platform/validator"
)

func (s *Service) validateBatch(leads []domain.Lead) error {
	if s.opts.MaxBatchSize > 0 && len(leads) > s.opts.MaxBatchSize {
		return apperr.Validation(fmt.Sprintf("batch of %d leads exceeds the limit of %d", len(leads), s.opts.MaxBatchSize)).
			WithOp("scoring.Score").
			WithDetails([]validator.FieldError{{Field: "leads", Reason: fmt.Sprintf("must have at most %d items", s.opts.MaxBatchSize)}})
	}
	if errs := validateLeads("leads", leads); len(errs) > 0 {
		return apperr.Validation("invalid lead batch").WithOp("scoring.Score").WithDetails(errs)
	}
	return nil
}

// validateLeads reports every offending field as "<prefix>[i].<field>".
func validateLeads(prefix string, leads []domain.Lead) []validator.FieldError {
	var errs []validator.FieldError
	add := func(i int, field, reason string) {
		errs = append(errs, validator.FieldError{Field: fmt.Sprintf("%s[%d].%s", prefix, i, field), Reason: reason})
	}

	for i, l := range leads {
		for _, f := range []struct{ name, value string }{
			{"name", l.Name},
			{"company", l.Company},
			{"industry", l.Industry},
			{"size", l.Size},
			{"lastContact", l.LastContact},
		} {
			if strings.TrimSpace(f.value) == "" {
				add(i, f.name, "is required")
			}
		}
		if strings.TrimSpace(l.LastContact) != "" {
			if _, ok := features.ParseContactDate(l.LastContact); !ok {
				add(i, "lastContact", "must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
			}
		}
		if l.Budget != nil && (math.IsNaN(*l.Budget) || math.IsInf(*l.Budget, 0) || *l.Budget < 0) {
			add(i, "budget", "must be a non-negative number")
		}
		for _, c := range []struct {
			name  string
			value *int
		}{
			{"previousPurchases", l.PreviousPurchases},
			{"interactions", l.Interactions},
		} {
			switch {
			case c.value == nil:
			case *c.value < 0:
				add(i, c.name, "must be greater than or equal to 0")
			case *c.value > math.MaxInt32:
				add(i, c.name, fmt.Sprintf("must be less than or equal to %d", math.MaxInt32))
			}
		}
	}
	return errs
}
