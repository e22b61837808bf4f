package manifest

import "context"

// PlanReader is the read-only view of the manifest used by reconciliation
// and the plan service.
type PlanReader interface {
	// GetPlan retrieves a single plan by ID.
	GetPlan(ctx context.Context, planID string) (*PlanRecord, error)

	// ListPlans returns plans newest first. A limit <= 0 returns all plans.
	ListPlans(ctx context.Context, limit int) ([]*PlanRecord, error)
}
