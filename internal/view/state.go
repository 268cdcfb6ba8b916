// Package view implements the per-view asynchronous data lifecycle and the refresh channel
// that lets a mutation in one view reload another without either referencing the other.
package view

import (
	"fmt"

	"example.com/fitnessclient/internal/domain"
)

// Status is the lifecycle phase of a FetchState.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// FetchState is the observable outcome of a view's most recent load.
// Data is retained while loading and cleared on error.
type FetchState[T any] struct {
	Status  Status
	Data    T
	HasData bool
	Err     error
}

// Kind classifies Err.
func (s FetchState[T]) Kind() domain.ErrorKind {
	return domain.KindOf(s.Err)
}

// Message is the user-facing text for Err, empty when there is none.
func (s FetchState[T]) Message() string {
	return domain.UserMessage(s.Err)
}

func canTransition(from, to Status) bool {
	switch from {
	case StatusIdle, StatusSuccess, StatusError:
		return to == StatusLoading
	case StatusLoading:
		return to == StatusLoading || to == StatusSuccess || to == StatusError
	}
	return false
}

func mustTransition(from, to Status) {
	if !canTransition(from, to) {
		panic(fmt.Sprintf("view: illegal transition %s -> %s", from, to))
	}
}

func (s FetchState[T]) loading() FetchState[T] {
	mustTransition(s.Status, StatusLoading)
	return FetchState[T]{Status: StatusLoading, Data: s.Data, HasData: s.HasData}
}

func (s FetchState[T]) succeed(data T) FetchState[T] {
	mustTransition(s.Status, StatusSuccess)
	return FetchState[T]{Status: StatusSuccess, Data: data, HasData: true}
}

func (s FetchState[T]) fail(err error) FetchState[T] {
	mustTransition(s.Status, StatusError)
	return FetchState[T]{Status: StatusError, Err: err}
}
