package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidestore/tidestore-go/tidestore"
)

func TestIterStateTransitions(t *testing.T) {
	t.Run("OpenToRunningToDone", func(t *testing.T) {
		s := &planIterState{}
		require.True(t, s.isOpen())
		require.NoError(t, s.running())
		require.True(t, s.isRunning())
		require.NoError(t, s.done())
		require.True(t, s.isDone())
	})

	t.Run("OpenStraightToDone", func(t *testing.T) {
		s := &planIterState{}
		require.NoError(t, s.done())
		assert.True(t, s.isDone())
	})

	t.Run("DoneReopensOnReset", func(t *testing.T) {
		s := &planIterState{}
		require.NoError(t, s.done())
		require.NoError(t, s.reset())
		assert.True(t, s.isOpen())
	})

	t.Run("DoneRejectsRunning", func(t *testing.T) {
		s := &planIterState{}
		require.NoError(t, s.done())
		err := s.running()
		require.Error(t, err)
		var qse *tidestore.QueryStateError
		assert.True(t, errors.As(err, &qse))
	})

	t.Run("ClosedIsTerminal", func(t *testing.T) {
		s := &planIterState{}
		s.close()
		require.True(t, s.isClosed())
		assert.Error(t, s.reset())
		assert.Error(t, s.running())
		assert.Error(t, s.done())
	})

	t.Run("CloseIsIdempotent", func(t *testing.T) {
		s := &planIterState{}
		s.close()
		s.close()
		assert.True(t, s.isClosed())
		require.NoError(t, s.setState(stateClosed))
	})

	t.Run("CloseLegalFromEveryState", func(t *testing.T) {
		for _, from := range []iterStateKind{stateOpen, stateRunning, stateDone} {
			s := &planIterState{}
			if from != stateOpen {
				require.NoError(t, s.setState(from))
			}
			s.close()
			assert.True(t, s.isClosed(), "from %v", from)
		}
	})
}

func TestIterStateKindString(t *testing.T) {
	assert.Equal(t, "OPEN", stateOpen.String())
	assert.Equal(t, "RUNNING", stateRunning.String())
	assert.Equal(t, "DONE", stateDone.String())
	assert.Equal(t, "CLOSED", stateClosed.String())
}
