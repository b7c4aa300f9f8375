package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInvitationExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inv := Invitation{ExpiresAt: now.Add(time.Hour)}

	require.False(t, inv.Expired(now))
	require.True(t, inv.Expired(now.Add(2*time.Hour)))
}

func TestInvitationTerminal(t *testing.T) {
	inv := Invitation{Status: InvitationStatusPending}
	require.False(t, inv.Terminal())

	inv.Status = InvitationStatusAccepted
	require.True(t, inv.Terminal())

	inv.Status = InvitationStatusDeclined
	require.True(t, inv.Terminal())
}

func TestProfileIsManager(t *testing.T) {
	p := Profile{Role: RoleEmployee}
	require.False(t, p.IsManager())

	p.Role = RoleManager
	require.True(t, p.IsManager())
}
