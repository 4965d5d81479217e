package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dante/internal/session"
)

// StartSession starts an in-memory session, runs each setup statement in
// order and shuts the session down when the test ends.
func StartSession(t testing.TB, stmts ...string) *session.Session {
	t.Helper()
	s, err := session.Start(context.Background(), session.Options{Logger: NewTestLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	for _, stmt := range stmts {
		_, err := s.Evaluate(context.Background(), stmt)
		require.NoError(t, err, stmt)
	}
	return s
}
