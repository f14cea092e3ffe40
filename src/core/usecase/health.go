package usecase

import (
	"context"
	"log/slog"

	"trackrater/src/core/ports"
)

// HealthService checks the critical dependencies.
type HealthService struct {
	log      *slog.Logger
	db       ports.Repository
	external map[string]ports.ExternalService
}

// NewHealthService creates a new HealthService. external services are
// optional and only degrade the status when unhealthy.
func NewHealthService(log *slog.Logger, db ports.Repository, external map[string]ports.ExternalService) *HealthService {
	return &HealthService{
		log:      log,
		db:       db,
		external: external,
	}
}

// HealthStatus represents the health of the application.
type HealthStatus struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Check performs a health check of all application components.
func (s *HealthService) Check(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:     "ok",
		Components: make(map[string]ComponentHealth),
	}

	if s.db != nil {
		if err := s.db.Health(ctx); err != nil {
			s.log.Warn("database health check failed", "error", err)
			status.Status = "degraded"
			status.Components["database"] = ComponentHealth{Status: "unhealthy", Message: err.Error()}
		} else {
			status.Components["database"] = ComponentHealth{Status: "healthy"}
		}
	}

	for name, svc := range s.external {
		if svc == nil {
			continue
		}
		if err := svc.Health(ctx); err != nil {
			s.log.Warn("dependency health check failed", "component", name, "error", err)
			status.Status = "degraded"
			status.Components[name] = ComponentHealth{Status: "unhealthy", Message: err.Error()}
			continue
		}
		status.Components[name] = ComponentHealth{Status: "healthy"}
	}

	return status
}
