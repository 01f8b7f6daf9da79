package monitoring

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeswarm/log"
)

// TestMain runs before all tests to set up the test environment
func TestMain(m *testing.M) {
	// Initialize the logger before any tests run
	log.Initialize()
	defer log.Close()

	exitCode := m.Run()
	os.Exit(exitCode)
}

func drain(sink *ChannelSink) []Event {
	var events []Event
	for {
		select {
		case e := <-sink.Events():
			events = append(events, e)
		default:
			return events
		}
	}
}

func TestTrackerPercent(t *testing.T) {
	tracker := NewTracker(nil)

	tracker.BeginRun(4)
	assert.Zero(t, tracker.Percent())

	tracker.TaskSettled("openai/security", StatusCompleted, "")
	assert.InDelta(t, 25.0, tracker.Percent(), 1e-9)

	tracker.TaskSettled("anthropic/quality", StatusFailed, "timeout")
	tracker.TaskSettled("google/synthesis", StatusSkipped, "")
	tracker.TaskSettled("openai/architecture", StatusCompleted, "")
	assert.InDelta(t, 100.0, tracker.Percent(), 1e-9)
}

func TestTrackerPercentZeroTasks(t *testing.T) {
	tracker := NewTracker(nil)
	tracker.BeginRun(0)
	assert.Zero(t, tracker.Percent(), "an empty run reports 0, never NaN")
}

func TestTrackerPublishesEvents(t *testing.T) {
	sink := NewChannelSink(16)
	tracker := NewTracker(sink)

	tracker.BeginRun(1)
	tracker.BeginPhase("group-1")
	tracker.TaskRunning("openai/security")
	tracker.TaskSettled("openai/security", StatusCompleted, "2 findings")
	tracker.EndRun(StatusCompleted, "done")

	events := drain(sink)
	require.Len(t, events, 5)

	assert.Equal(t, "run", events[0].Phase)
	assert.Equal(t, StatusRunning, events[0].Status)

	running := events[2]
	assert.Equal(t, "group-1", running.Phase)
	assert.Equal(t, "openai/security", running.Task)

	settled := events[3]
	assert.Equal(t, StatusCompleted, settled.Status)
	assert.InDelta(t, 100.0, settled.Percent, 1e-9)
	assert.False(t, settled.Timestamp.IsZero())
}

func TestTrackerSurvivesPanickingSink(t *testing.T) {
	tracker := NewTracker(panickingSink{})

	assert.NotPanics(t, func() {
		tracker.BeginRun(1)
		tracker.TaskSettled("openai/security", StatusCompleted, "")
	})
}

type panickingSink struct{}

func (panickingSink) Publish(Event) { panic("sink bug") }

func TestChannelSinkDropsWhenFull(t *testing.T) {
	sink := NewChannelSink(2)

	for i := 0; i < 5; i++ {
		sink.Publish(Event{Phase: "run"})
	}

	assert.Equal(t, int64(3), sink.Dropped())
	assert.Len(t, drain(sink), 2)
}

func TestChannelSinkPublishNeverBlocks(t *testing.T) {
	sink := NewChannelSink(1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			sink.Publish(Event{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full sink")
	}
}

func TestPerformanceMonitor(t *testing.T) {
	monitor := NewPerformanceMonitor()

	monitor.PhaseStarted("group-1")
	time.Sleep(5 * time.Millisecond)
	monitor.PhaseFinished("group-1")
	monitor.PhaseStarted("group-2")
	monitor.PhaseFinished("group-2")

	monitor.RecordTask(10 * time.Millisecond)
	monitor.RecordTask(30 * time.Millisecond)

	phases := monitor.Phases()
	require.Len(t, phases, 2)
	assert.Equal(t, "group-1", phases[0].Name)
	assert.Positive(t, phases[0].Duration)

	assert.Positive(t, monitor.Elapsed())
	summary := monitor.Summary()
	assert.Contains(t, summary, "tasks: 2")
	assert.Contains(t, summary, "avg=20ms")
}

func TestPerformanceMonitorUnknownPhaseFinish(t *testing.T) {
	monitor := NewPerformanceMonitor()
	assert.NotPanics(t, func() { monitor.PhaseFinished("never-started") })
	assert.Empty(t, monitor.Phases())
}
