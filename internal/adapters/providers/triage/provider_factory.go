package triage

import (
	"github.com/zatekoja/outpatient-scheduling/internal/domain/providers"
	"github.com/zatekoja/outpatient-scheduling/pkg/config"
)

// NewTriageProvider returns the live client, or the simulator when
// simulation is switched on or no endpoint is configured.
func NewTriageProvider(cfg config.TriageConfig) providers.TriageProvider {
	if cfg.UseTriageSimulator() {
		return NewSimulator(cfg.SimulatorCapacity, cfg.SimulatorJitter, 0)
	}

	return NewHTTPClient(HTTPClientConfig{
		Endpoint: cfg.EndpointURL,
		Timeout:  cfg.Timeout,
	})
}
