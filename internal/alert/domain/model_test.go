package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/cashflow/pkg/apperr"
)

func activeAlert() *Alert {
	return &Alert{ID: "a-1", CompanyID: "co-1", Status: StatusActive}
}

func TestAlertAcknowledge(t *testing.T) {
	a := activeAlert()
	require.NoError(t, a.Acknowledge())
	assert.Equal(t, StatusAcknowledged, a.Status)

	// 重复确认是冲突
	err := a.Acknowledge()
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestAlertResolveFromActiveAndAcknowledged(t *testing.T) {
	a := activeAlert()
	require.NoError(t, a.Resolve())
	assert.Equal(t, StatusResolved, a.Status)

	b := activeAlert()
	require.NoError(t, b.Acknowledge())
	require.NoError(t, b.Resolve())
	assert.Equal(t, StatusResolved, b.Status)
}

func TestAlertDismiss(t *testing.T) {
	a := activeAlert()
	require.NoError(t, a.Dismiss())
	assert.Equal(t, StatusDismissed, a.Status)
}

func TestTerminalAlertStatesAreFinal(t *testing.T) {
	resolved := activeAlert()
	require.NoError(t, resolved.Resolve())

	assert.True(t, apperr.IsKind(resolved.Acknowledge(), apperr.KindConflict))
	assert.True(t, apperr.IsKind(resolved.Resolve(), apperr.KindConflict))
	assert.True(t, apperr.IsKind(resolved.Dismiss(), apperr.KindConflict))

	dismissed := activeAlert()
	require.NoError(t, dismissed.Dismiss())
	assert.True(t, apperr.IsKind(dismissed.Resolve(), apperr.KindConflict))
}
