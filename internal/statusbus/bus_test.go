package statusbus

import (
	"testing"

	"github.com/harrison/corerun/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_FanOutDeliversToEverySubscriber(t *testing.T) {
	b := New()
	a, _ := b.Subscribe()
	c, _ := b.Subscribe()

	b.Publish(models.StatusEvent{Kind: models.EventRunStarted})

	require.Len(t, a, 1)
	require.Len(t, c, 1)
}

func TestPublish_FullBufferEvictsOldestNotNewest(t *testing.T) {
	b := New()
	events, _ := b.Subscribe()

	// Fill the subscriber's buffer to capacity, then publish one more: the
	// oldest buffered event should be gone, and the newest should survive.
	for i := 0; i < DefaultBuffer; i++ {
		b.Publish(models.StatusEvent{Kind: models.EventTaskStarted, TaskID: "filler"})
	}
	b.Publish(models.StatusEvent{Kind: models.EventRunFinished, TaskID: "newest"})

	var last models.StatusEvent
	for i := 0; i < DefaultBuffer; i++ {
		last = <-events
	}
	assert.Equal(t, models.EventRunFinished, last.Kind)
	assert.Equal(t, "newest", last.TaskID)
	assert.Equal(t, uint64(1), b.Dropped())
}

func TestGap_NoGapForConsecutiveSeqs(t *testing.T) {
	assert.Equal(t, uint64(0), Gap(4, 5))
}

func TestGap_ReportsMissingCount(t *testing.T) {
	assert.Equal(t, uint64(3), Gap(4, 8))
}

func TestGap_ZeroLastSeqNeverReportsAGap(t *testing.T) {
	// A subscriber that hasn't processed anything yet has no baseline to
	// compare against.
	assert.Equal(t, uint64(0), Gap(0, 100))
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	b := New()
	events, unsubscribe := b.Subscribe()
	unsubscribe()

	_, ok := <-events
	assert.False(t, ok)
}
