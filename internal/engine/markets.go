package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/SgtSwagrid/swagbets/internal/metrics"
	"github.com/SgtSwagrid/swagbets/internal/model"
)

// DefaultColour is assigned to outcomes created without a display
// colour.
const DefaultColour = "#444466"

// OutcomeSpec describes one outcome of a new proposition.
type OutcomeSpec struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Colour      string `json:"colour"`
}

// CreateProposition registers a new market: the proposition plus its
// mutually-exclusive outcomes (at least two).
func (e *Engine) CreateProposition(ctx context.Context, code, description string, resolvesAt time.Time, specs []OutcomeSpec) (*model.Proposition, []model.Outcome, error) {
	if err := model.ValidateCode(code); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if len(specs) < 2 {
		return nil, nil, fmt.Errorf("%w: a proposition needs at least two outcomes", ErrInvalidOrder)
	}

	prop := &model.Proposition{
		ID:          uuid.New().String(),
		Code:        code,
		Description: description,
		CreatedAt:   e.now(),
		ResolvesAt:  resolvesAt,
		Active:      true,
	}

	outcomes := make([]model.Outcome, 0, len(specs))
	for _, spec := range specs {
		if err := model.ValidateCode(spec.Code); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
		}
		colour := spec.Colour
		if colour == "" {
			colour = DefaultColour
		}
		if err := model.ValidateColour(colour); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
		}
		outcomes = append(outcomes, model.Outcome{
			ID:            uuid.New().String(),
			PropositionID: prop.ID,
			Code:          spec.Code,
			Description:   spec.Description,
			Colour:        colour,
		})
	}

	if err := e.store.CreateProposition(ctx, prop); err != nil {
		return nil, nil, err
	}
	for i := range outcomes {
		if err := e.store.CreateOutcome(ctx, &outcomes[i]); err != nil {
			return nil, nil, err
		}
	}
	metrics.ActivePropositions.Inc()
	return prop, outcomes, nil
}
