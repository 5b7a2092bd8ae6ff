package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/academy-pulse-api/pkg/errors"
)

func TestNextAlertStatus(t *testing.T) {
	cases := []struct {
		name    string
		current AlertStatus
		action  AlertAction
		want    AlertStatus
		wantErr bool
	}{
		{"acknowledge active", AlertActive, ActionAcknowledge, AlertAcknowledged, false},
		{"dismiss active", AlertActive, ActionDismiss, AlertDismissed, false},
		{"resolve acknowledged", AlertAcknowledged, ActionResolve, AlertResolved, false},
		{"resolve active skips acknowledge", AlertActive, ActionResolve, "", true},
		{"dismiss acknowledged", AlertAcknowledged, ActionDismiss, "", true},
		{"acknowledge resolved", AlertResolved, ActionAcknowledge, "", true},
		{"resolve dismissed", AlertDismissed, ActionResolve, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := NextAlertStatus(tc.current, tc.action)
			if tc.wantErr {
				require.Error(t, err)
				assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, next)
		})
	}
}

func TestAlertStatusTerminal(t *testing.T) {
	assert.False(t, AlertActive.Terminal())
	assert.False(t, AlertAcknowledged.Terminal())
	assert.True(t, AlertResolved.Terminal())
	assert.True(t, AlertDismissed.Terminal())
}

func TestParseAlertAction(t *testing.T) {
	for _, raw := range []string{"acknowledge", "resolve", "dismiss"} {
		action, err := ParseAlertAction(raw)
		require.NoError(t, err)
		assert.Equal(t, AlertAction(raw), action)
	}

	_, err := ParseAlertAction("escalate")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
