package triage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
)

func exampleBatch() []entities.TriageBatchItem {
	return []entities.TriageBatchItem{
		{RequestID: "R1", Age: 60, VisitingStatus: entities.VisitingStatusDischarged2Weeks, MedicalCondition: "Severe headache"},
		{RequestID: "R2", Age: 35, VisitingStatus: entities.VisitingStatusReview, MedicalCondition: "routine checkup"},
		{RequestID: "R3", Age: 48, VisitingStatus: entities.VisitingStatusInternalReferral, MedicalCondition: "numbness"},
	}
}

func ranksByID(decisions []entities.TriageDecision) map[string]int {
	out := make(map[string]int, len(decisions))
	for _, d := range decisions {
		out[d.RequestID] = d.PriorityRank
	}
	return out
}

func TestSimulator_ExampleBatch(t *testing.T) {
	sim := NewSimulator(170, 0, 1)

	decisions, err := sim.Submit(context.Background(), exampleBatch())
	require.NoError(t, err)
	require.Len(t, decisions, 3)

	assert.Equal(t, []string{"R1", "R3", "R2"}, []string{decisions[0].RequestID, decisions[1].RequestID, decisions[2].RequestID})
	assert.Equal(t, 1, decisions[0].PriorityRank)
	assert.Equal(t, 10, decisions[0].SeverityScore, "urgent keyword plus discharge nudge")
	assert.Equal(t, 2, decisions[1].PriorityRank)
	assert.Equal(t, 4, decisions[2].PriorityRank)
	assert.Equal(t, 2, decisions[2].SeverityScore, "routine keyword minus review nudge")

	for _, d := range decisions {
		assert.Equal(t, entities.VisitRequestStatusApproved, d.Status)
	}
}

func TestSimulator_RankIsDeterministicDespiteJitter(t *testing.T) {
	batch := exampleBatch()
	first, err := NewSimulator(170, 2, 11).Submit(context.Background(), batch)
	require.NoError(t, err)
	second, err := NewSimulator(170, 2, 99).Submit(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, ranksByID(first), ranksByID(second))

	for _, d := range append(first, second...) {
		assert.GreaterOrEqual(t, d.SeverityScore, entities.MinSeverityScore)
		assert.LessOrEqual(t, d.SeverityScore, entities.MaxSeverityScore)
	}
}

func TestSimulator_JitterStaysWithinBounds(t *testing.T) {
	sim := NewSimulator(10, 2, 7)
	item := entities.TriageBatchItem{RequestID: "x", VisitingStatus: entities.VisitingStatusExternalReferral, MedicalCondition: "cough"}
	_, base := Score(item)

	for i := 0; i < 200; i++ {
		decisions, err := sim.Submit(context.Background(), []entities.TriageBatchItem{item})
		require.NoError(t, err)
		delta := decisions[0].SeverityScore - base
		assert.True(t, delta >= -2 && delta <= 2, "delta %d out of range", delta)
	}
}

func TestSimulator_CapacitySplitsApprovedAndRebook(t *testing.T) {
	items := make([]entities.TriageBatchItem, 0, 5)
	for i := 0; i < 5; i++ {
		items = append(items, entities.TriageBatchItem{
			RequestID:        fmt.Sprintf("r%d", i),
			VisitingStatus:   entities.VisitingStatusExternalReferral,
			MedicalCondition: "persistent cough",
		})
	}

	decisions, err := NewSimulator(2, 0, 1).Submit(context.Background(), items)
	require.NoError(t, err)

	// Equal (rank, severity) keeps submission order.
	ids := make([]string, 0, len(decisions))
	for _, d := range decisions {
		ids = append(ids, d.RequestID)
	}
	assert.Equal(t, []string{"r0", "r1", "r2", "r3", "r4"}, ids)

	assert.Equal(t, entities.VisitRequestStatusApproved, decisions[0].Status)
	assert.Equal(t, entities.VisitRequestStatusApproved, decisions[1].Status)
	for _, d := range decisions[2:] {
		assert.Equal(t, entities.VisitRequestStatusRebook, d.Status)
	}
}

func TestScore_UnknownCategoryRanksLast(t *testing.T) {
	rank, severity := Score(entities.TriageBatchItem{VisitingStatus: "walk_in", MedicalCondition: ""})
	assert.Equal(t, unknownCategoryRank, rank)
	assert.Equal(t, baseSeverity, severity)
}
