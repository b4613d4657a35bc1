package models

import (
	"strconv"
	"strings"
	"time"
)

type TokenStatus string

const (
	StatusWaiting   TokenStatus = "WAITING"
	StatusCalled    TokenStatus = "CALLED"
	StatusServing   TokenStatus = "SERVING"
	StatusCompleted TokenStatus = "COMPLETED"
	StatusSkipped   TokenStatus = "SKIPPED"
	StatusCancelled TokenStatus = "CANCELLED"
)

func (s TokenStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusCalled, StatusServing, StatusCompleted, StatusSkipped, StatusCancelled:
		return true
	}
	return false
}

func (s TokenStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusSkipped || s == StatusCancelled
}

type Token struct {
	ID            string      `json:"id"`
	TicketNumber  string      `json:"ticketNumber"`
	ServiceID     string      `json:"serviceId"`
	CounterID     string      `json:"counterId,omitempty"`
	Status        TokenStatus `json:"status"`
	CustomerName  string      `json:"customerName,omitempty"`
	CustomerPhone string      `json:"customerPhone,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	CalledAt      *time.Time  `json:"calledAt,omitempty"`
	ServedAt      *time.Time  `json:"servedAt,omitempty"`
	CompletedAt   *time.Time  `json:"completedAt,omitempty"`
}

// Sequence returns the numeric part of the ticket number, or 0 when the
// number is malformed.
func (t Token) Sequence() int {
	idx := strings.LastIndexByte(t.TicketNumber, '-')
	if idx < 0 {
		return 0
	}
	seq, err := strconv.Atoi(t.TicketNumber[idx+1:])
	if err != nil {
		return 0
	}
	return seq
}

// Clone returns a copy that shares no timestamp pointers with t.
func (t Token) Clone() Token {
	t.CalledAt = cloneTime(t.CalledAt)
	t.ServedAt = cloneTime(t.ServedAt)
	t.CompletedAt = cloneTime(t.CompletedAt)
	return t
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
