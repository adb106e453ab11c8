// Package session описывает переходы состояний сессии за столиком.
package session

import (
	"time"

	"github.com/mmeshcher/tableside/internal/model"
)

// Action описывает событие, переводящее сессию в новое состояние.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionDecline  Action = "decline"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "settle"
)

var transitions = map[model.ReservationStatus]map[Action]model.ReservationStatus{
	model.ReservationPending: {
		ActionAccept:  model.ReservationActive,
		ActionDecline: model.ReservationDeclined,
		ActionCancel:  model.ReservationCancelled,
	},
	model.ReservationActive: {
		ActionComplete: model.ReservationCompleted,
		ActionCancel:   model.ReservationCancelled,
	},
}

// Next возвращает состояние после действия или ошибку конфликта, если переход запрещён.
func Next(from model.ReservationStatus, action Action) (model.ReservationStatus, error) {
	to, ok := transitions[from][action]
	if !ok {
		return from, model.Errorf(model.KindConflict, "session.Next", "cannot %s a %s reservation", action, from)
	}
	return to, nil
}

// Apply переводит сессию и обновляет отметку времени.
func Apply(r *model.Reservation, action Action, now time.Time) error {
	to, err := Next(r.Status, action)
	if err != nil {
		return err
	}
	r.Status = to
	r.UpdatedAt = now
	return nil
}

// TableStatusAfter возвращает статус столика, соответствующий состоянию сессии.
func TableStatusAfter(status model.ReservationStatus) model.TableStatus {
	switch status {
	case model.ReservationPending:
		return model.TableReserved
	case model.ReservationActive:
		return model.TableOccupied
	default:
		return model.TableAvailable
	}
}

// Admit проверяет, что столик свободен. Существующая открытая сессия приводит к TableOccupiedError.
func Admit(tableID string, existing *model.Reservation) error {
	if existing == nil || !existing.Status.IsOpen() {
		return nil
	}
	return &model.TableOccupiedError{
		TableID:       tableID,
		ReservationID: existing.ID,
		UserID:        existing.UserID,
		UserName:      existing.UserName,
	}
}
