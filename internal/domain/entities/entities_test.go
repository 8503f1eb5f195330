package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateQueueTransition(t *testing.T) {
	tests := []struct {
		from    QueueEntryStatus
		to      QueueEntryStatus
		wantErr bool
	}{
		{QueueEntryStatusApproved, QueueEntryStatusInProgress, false},
		{QueueEntryStatusApproved, QueueEntryStatusUnavailable, false},
		{QueueEntryStatusApproved, QueueEntryStatusCompleted, true},
		{QueueEntryStatusInProgress, QueueEntryStatusCompleted, false},
		{QueueEntryStatusInProgress, QueueEntryStatusApproved, false},
		{QueueEntryStatusUnavailable, QueueEntryStatusApproved, false},
		{QueueEntryStatusUnavailable, QueueEntryStatusInProgress, true},
		{QueueEntryStatusCompleted, QueueEntryStatusApproved, true},
		{QueueEntryStatus("lost"), QueueEntryStatusApproved, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := ValidateQueueTransition(tt.from, tt.to)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPatient_AgeAt(t *testing.T) {
	birth := time.Date(1990, time.June, 15, 0, 0, 0, 0, time.UTC)
	p := &Patient{BirthDate: &birth}

	age, ok := p.AgeAt(time.Date(2024, time.June, 14, 12, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, 33, age)

	age, ok = p.AgeAt(time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, 34, age)

	_, ok = (&Patient{}).AgeAt(time.Now())
	assert.False(t, ok)
}

func TestContactFor(t *testing.T) {
	t.Run("uses preferred channel", func(t *testing.T) {
		c, err := ContactFor(&Patient{Email: "a@b.ng", Phone: "+2348000", PreferredChannel: ChannelSMS})
		require.NoError(t, err)
		assert.Equal(t, Contact{Channel: ChannelSMS, Address: "+2348000"}, c)
	})

	t.Run("falls back when preferred address is missing", func(t *testing.T) {
		c, err := ContactFor(&Patient{Email: "a@b.ng", PreferredChannel: ChannelSMS})
		require.NoError(t, err)
		assert.Equal(t, ChannelEmail, c.Channel)
	})

	t.Run("errors without any address", func(t *testing.T) {
		_, err := ContactFor(&Patient{ID: "p1"})
		assert.Error(t, err)
	})
}

func TestMessageKindFor(t *testing.T) {
	kind, ok := MessageKindFor(VisitRequestStatusApproved)
	assert.True(t, ok)
	assert.Equal(t, MessageKindApproval, kind)

	kind, ok = MessageKindFor(VisitRequestStatusRebook)
	assert.True(t, ok)
	assert.Equal(t, MessageKindWaitlist, kind)

	_, ok = MessageKindFor(VisitRequestStatusPending)
	assert.False(t, ok)
}

func TestQueueView_Stats(t *testing.T) {
	view := &QueueView{
		Active: []*QueueEntry{
			{ID: "a", Status: QueueEntryStatusInProgress},
			{ID: "b", Status: QueueEntryStatusApproved},
		},
		Completed:   []*QueueEntry{{ID: "c"}},
		Unavailable: []*QueueEntry{{ID: "d"}, {ID: "e"}},
	}

	stats := view.Stats()
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 1, stats.InProgress)
	assert.Equal(t, 1, stats.Approved)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 2, stats.Unavailable)
}
