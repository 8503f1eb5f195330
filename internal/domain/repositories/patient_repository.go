package repositories

import (
	"context"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
)

// PatientRepository reads patient records owned by the identity collaborator
type PatientRepository interface {
	// GetByIDs returns the patients found, keyed by id. Missing ids are
	// simply absent from the map.
	GetByIDs(ctx context.Context, ids []string) (map[string]*entities.Patient, error)
}
