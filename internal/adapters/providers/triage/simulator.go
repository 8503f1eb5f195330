package triage

import (
	"context"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/providers"
)

const (
	baseSeverity    = 5
	urgentSeverity  = 9
	routineSeverity = 3
)

var urgencyKeywords = []string{
	"severe", "acute", "chest pain", "bleeding", "numbness", "seizure",
	"stroke", "fracture", "shortness of breath", "unconscious", "emergency",
	"urgent", "high fever", "paralysis",
}

var routineKeywords = []string{
	"routine", "checkup", "check-up", "follow-up", "follow up", "refill",
	"mild", "stable", "prescription",
}

// categoryRank is the rank tier for each visiting category; lower is more urgent
var categoryRank = map[entities.VisitingStatus]int{
	entities.VisitingStatusDischarged2Weeks: 1,
	entities.VisitingStatusDischarged1Week:  1,
	entities.VisitingStatusInternalReferral: 2,
	entities.VisitingStatusExternalReferral: 3,
	entities.VisitingStatusReview:           4,
}

const unknownCategoryRank = 5

// Simulator is a local stand-in for the triage service. Rank depends only on
// the input; severity carries bounded random jitter.
type Simulator struct {
	capacity int
	jitter   int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator creates a simulator approving up to capacity requests per batch.
// A zero seed draws one from the clock.
func NewSimulator(capacity, jitter int, seed uint64) *Simulator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	if jitter < 0 {
		jitter = 0
	}
	return &Simulator{
		capacity: capacity,
		jitter:   jitter,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

var _ providers.TriageProvider = (*Simulator)(nil)

// Name identifies the provider
func (s *Simulator) Name() string {
	return "simulator"
}

// Submit ranks the batch locally
func (s *Simulator) Submit(ctx context.Context, items []entities.TriageBatchItem) ([]entities.TriageDecision, error) {
	decisions := make([]entities.TriageDecision, 0, len(items))
	for _, item := range items {
		rank, severity := Score(item)
		decisions = append(decisions, entities.TriageDecision{
			RequestID:     item.RequestID,
			PriorityRank:  rank,
			SeverityScore: clampSeverity(severity + s.jitterDelta()),
		})
	}

	// Stable so equal (rank, severity) pairs keep submission order.
	sort.SliceStable(decisions, func(i, j int) bool {
		if decisions[i].PriorityRank != decisions[j].PriorityRank {
			return decisions[i].PriorityRank < decisions[j].PriorityRank
		}
		return decisions[i].SeverityScore > decisions[j].SeverityScore
	})

	for i := range decisions {
		if i < s.capacity {
			decisions[i].Status = entities.VisitRequestStatusApproved
		} else {
			decisions[i].Status = entities.VisitRequestStatusRebook
		}
	}

	return decisions, nil
}

// Score returns the deterministic rank and pre-jitter severity of one item
func Score(item entities.TriageBatchItem) (rank, severity int) {
	condition := strings.ToLower(item.MedicalCondition)

	severity = baseSeverity
	switch {
	case containsAny(condition, urgencyKeywords):
		severity = urgentSeverity
	case containsAny(condition, routineKeywords):
		severity = routineSeverity
	}

	rank, ok := categoryRank[item.VisitingStatus]
	if !ok {
		rank = unknownCategoryRank
	}

	switch {
	case item.VisitingStatus.IsDischarge():
		severity++
	case item.VisitingStatus == entities.VisitingStatusReview:
		severity--
	}

	return rank, clampSeverity(severity)
}

func (s *Simulator) jitterDelta() int {
	if s.jitter == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(2*s.jitter+1) - s.jitter
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func clampSeverity(v int) int {
	if v < entities.MinSeverityScore {
		return entities.MinSeverityScore
	}
	if v > entities.MaxSeverityScore {
		return entities.MaxSeverityScore
	}
	return v
}
