package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telemedicine-booking/internal/apperr"
)

func TestNext(t *testing.T) {
	all := []Status{StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow}

	legal := map[Transition]map[Status]Status{
		TransitionConfirm: {
			StatusScheduled: StatusConfirmed,
		},
		TransitionStart: {
			StatusConfirmed: StatusInProgress,
		},
		TransitionCancel: {
			StatusScheduled:  StatusCancelled,
			StatusConfirmed:  StatusCancelled,
			StatusInProgress: StatusCancelled,
		},
		TransitionComplete: {
			StatusConfirmed:  StatusCompleted,
			StatusInProgress: StatusCompleted,
		},
		TransitionNoShow: {
			StatusConfirmed:  StatusNoShow,
			StatusInProgress: StatusNoShow,
		},
	}

	for tr, targets := range legal {
		for _, from := range all {
			t.Run(string(tr)+"/"+string(from), func(t *testing.T) {
				got, err := Next(from, tr)
				want, ok := targets[from]
				if ok {
					require.NoError(t, err)
					assert.Equal(t, want, got)
					return
				}
				require.Error(t, err)
				assert.Equal(t, apperr.InvalidStatus, apperr.KindOf(err))
				assert.ErrorIs(t, err, ErrInvalidStatus)
			})
		}
	}
}

func TestNextUnknownTransition(t *testing.T) {
	_, err := Next(StatusScheduled, Transition("teleport"))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestTerminalStatusesAllowNothing(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusNoShow} {
		assert.True(t, s.Terminal(), s)
		assert.Empty(t, Allowed(s), s)
	}
	for _, s := range ActiveStatuses {
		assert.False(t, s.Terminal(), s)
		assert.Contains(t, Allowed(s), TransitionCancel, s)
	}
}

func TestParseStatusAndMode(t *testing.T) {
	s, err := ParseStatus("in_progress")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, s)

	_, err = ParseStatus("pending")
	assert.Error(t, err)

	m, err := ParseMode("video")
	require.NoError(t, err)
	assert.Equal(t, ModeVideo, m)

	_, err = ParseMode("carrier-pigeon")
	assert.Error(t, err)
}
