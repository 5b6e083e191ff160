package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesync/internal/domain"
)

func TestHandleLine_PrivateNoteRequiresElevatedRole(t *testing.T) {
	quit, err := handleLine(context.Background(), nil, domain.RoleCandidate, ":priv leans on hints")
	assert.False(t, quit)
	require.ErrorContains(t, err, "interviewer")
}

func TestHandleLine_ControlCommands(t *testing.T) {
	quit, err := handleLine(context.Background(), nil, domain.RoleCandidate, "")
	assert.False(t, quit)
	require.NoError(t, err)

	quit, err = handleLine(context.Background(), nil, domain.RoleCandidate, ":quit")
	assert.True(t, quit)
	require.NoError(t, err)

	_, err = handleLine(context.Background(), nil, domain.RoleCandidate, ":wat")
	require.ErrorContains(t, err, "unknown command")
}
