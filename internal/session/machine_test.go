package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/tableside/internal/model"
)

func TestNext(t *testing.T) {
	tests := []struct {
		from   model.ReservationStatus
		action Action
		want   model.ReservationStatus
		ok     bool
	}{
		{model.ReservationPending, ActionAccept, model.ReservationActive, true},
		{model.ReservationPending, ActionDecline, model.ReservationDeclined, true},
		{model.ReservationPending, ActionCancel, model.ReservationCancelled, true},
		{model.ReservationActive, ActionComplete, model.ReservationCompleted, true},
		{model.ReservationActive, ActionCancel, model.ReservationCancelled, true},
		{model.ReservationPending, ActionComplete, model.ReservationPending, false},
		{model.ReservationActive, ActionAccept, model.ReservationActive, false},
		{model.ReservationCompleted, ActionComplete, model.ReservationCompleted, false},
		{model.ReservationDeclined, ActionAccept, model.ReservationDeclined, false},
		{model.ReservationCancelled, ActionCancel, model.ReservationCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			got, err := Next(tt.from, tt.action)
			assert.Equal(t, tt.want, got)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, model.KindConflict, model.KindOf(err))
			}
		})
	}
}

func TestApply_UpdatesTimestamp(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := &model.Reservation{Status: model.ReservationPending}

	require.NoError(t, Apply(r, ActionAccept, now))
	assert.Equal(t, model.ReservationActive, r.Status)
	assert.Equal(t, now, r.UpdatedAt)
	assert.Equal(t, model.TableOccupied, TableStatusAfter(r.Status))

	require.Error(t, Apply(r, ActionDecline, now))
	assert.Equal(t, model.ReservationActive, r.Status)
}

func TestAdmit(t *testing.T) {
	assert.NoError(t, Admit("t1", nil))
	assert.NoError(t, Admit("t1", &model.Reservation{Status: model.ReservationCompleted}))

	err := Admit("t1", &model.Reservation{ID: "res-1", UserID: "u-2", UserName: "Ann", Status: model.ReservationActive})
	var occupied *model.TableOccupiedError
	require.True(t, errors.As(err, &occupied))
	assert.Equal(t, "u-2", occupied.UserID)
	assert.Equal(t, "Ann", occupied.UserName)
	assert.Equal(t, model.KindConflict, model.KindOf(err))
}
