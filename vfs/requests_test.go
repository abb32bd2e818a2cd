package vfs

import (
	"testing"

	"github.com/cloudkit/cloudkit"
	"github.com/stretchr/testify/assert"
)

type fakeRequest struct {
	state     cloudkit.RequestState
	cancelled bool
}

func (f *fakeRequest) Cancel()                     { f.cancelled = true; f.state = cloudkit.StateCancelled }
func (f *fakeRequest) State() cloudkit.RequestState { return f.state }

func TestRequestBookkeeper_SweepDropsTerminal(t *testing.T) {
	t.Parallel()

	b := NewRequestBookkeeper(0)
	running := &fakeRequest{state: cloudkit.StateRunning}
	done := &fakeRequest{state: cloudkit.StateDone}
	b.Track(running)
	b.Track(done)

	b.sweep()

	assert.Equal(t, 1, b.Len(), "only the running request should survive a sweep")
}

func TestRequestBookkeeper_CancelAllCancelsEveryTrackedRequest(t *testing.T) {
	t.Parallel()

	b := NewRequestBookkeeper(0)
	r1 := &fakeRequest{state: cloudkit.StateRunning}
	r2 := &fakeRequest{state: cloudkit.StatePaused}
	b.Track(r1)
	b.Track(r2)

	err := b.CancelAll()

	assert.NoError(t, err)
	assert.True(t, r1.cancelled)
	assert.True(t, r2.cancelled)
	assert.Equal(t, 0, b.Len())
}
