package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stoneyard/api/internal/repositories"
)

// ErrSystemUnavailable indicates the health probes themselves failed to run.
var ErrSystemUnavailable = errors.New("system service: unavailable")

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps wires the utility surface dependencies.
type SystemServiceDeps struct {
	Health repositories.HealthRepository
	Build  BuildInfo
	Logger func(context.Context, string, map[string]any)
}

type systemService struct {
	health repositories.HealthRepository
	build  BuildInfo
	logger func(context.Context, string, map[string]any)
}

// NewSystemService constructs a SystemService enforcing dependency validation.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Health == nil {
		return nil, errors.New("system service: health repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &systemService{health: deps.Health, build: deps.Build, logger: logger}, nil
}

// HealthReport probes every registered dependency and aggregates the results.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, fmt.Errorf("%w: %v", ErrSystemUnavailable, err)
	}
	for name, check := range report.Checks {
		if check.Error != "" {
			s.logger(ctx, "health.check_failed", map[string]any{"check": name, "error": check.Error})
		}
	}
	return report, nil
}

// Build returns the process build metadata.
func (s *systemService) Build() BuildInfo {
	return s.build
}
