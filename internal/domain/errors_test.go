package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfWalksWrapChain(t *testing.T) {
	wrapped := fmt.Errorf("list activities: %w", &NetworkError{Kind: KindTimeout, Op: "GET /activities"})
	require.Equal(t, KindTimeout, KindOf(wrapped))
	require.ErrorIs(t, wrapped, ErrTimeout)
	require.False(t, errors.Is(wrapped, ErrConnectionFailed))

	require.Equal(t, KindNotFound, KindOf(&NotFoundError{Resource: "activity", ID: "x"}))
	require.Equal(t, KindServer, KindOf(&ServerError{Status: 502}))
	require.Equal(t, KindUnauthenticated, KindOf(&AuthError{Kind: KindUnauthenticated}))
	require.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	require.Equal(t, KindNone, KindOf(nil))
}

func TestUserMessage(t *testing.T) {
	require.Empty(t, UserMessage(nil))
	require.Contains(t, UserMessage(ErrTimeout), "too long")
	require.Contains(t, UserMessage(MissingField("duration")), "duration is required")
	require.Contains(t, UserMessage(&NotFoundError{}), "could not be found")
	require.Contains(t, UserMessage(&AuthError{Kind: KindUnauthenticated}), "sign in again")
}

func TestAuthErrorMatchesByKind(t *testing.T) {
	err := &AuthError{Kind: KindInvalidSession, Reason: "state mismatch"}
	require.ErrorIs(t, err, ErrInvalidSession)
	require.False(t, errors.Is(err, ErrUnauthenticated))
	require.ErrorIs(t, err, &AuthError{})
	require.Equal(t, "invalid session: state mismatch", err.Error())
}
