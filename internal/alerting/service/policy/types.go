package policy

import (
	"context"

	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
)

// Store resolves escalation policies. The engine treats policies as
// read-only at run time; mutation happens through configuration bootstrap.
type Store interface {
	GetPolicy(ctx context.Context, id string) (*model.EscalationPolicy, error)
	ListPolicies(ctx context.Context) ([]*model.EscalationPolicy, error)
}
