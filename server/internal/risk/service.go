package risk

import (
	"context"
	"fmt"

	"github.com/healthwatch/healthwatch/pkg/types"
	"github.com/healthwatch/healthwatch/server/internal/store"
)

// Service scores machines from the live alert store.
type Service struct {
	store   store.AlertStore
	ceiling int
}

// NewService returns a Service reading from st.
func NewService(st store.AlertStore, ceiling int) *Service {
	return &Service{store: st, ceiling: ceiling}
}

// RiskScore returns the current score of machineID. A machine with no open
// alerts, including one that has never reported, scores zero.
func (s *Service) RiskScore(ctx context.Context, machineID string) (types.RiskScore, error) {
	open, err := s.store.ListOpenAlerts(ctx, machineID)
	if err != nil {
		return types.RiskScore{}, fmt.Errorf("risk: list open alerts: %w", err)
	}
	return Score(open, s.ceiling), nil
}
