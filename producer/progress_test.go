package producer

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStreamTrackerCounts(t *testing.T) {
	st := NewStreamTracker("t", 3)
	st.StartFrame(0)
	assert.Equal(t, FrameSending, st.FrameStatus(0))
	st.CompleteFrame(0, 1024)
	st.StartFrame(1)
	st.FailFrame(1)
	st.StartFrame(2)
	st.CompleteFrame(2, 1024)

	sent, total, _, _, failed := st.GetProgress()
	assert.EqualValues(t, 2, sent)
	assert.EqualValues(t, 3, total)
	assert.EqualValues(t, 1, failed)
	assert.EqualValues(t, 2048, st.GetBytesSent())
	assert.Equal(t, FrameFailed, st.FrameStatus(1))
	assert.Equal(t, FramePending, st.FrameStatus(0))
	assert.False(t, st.IsComplete())
}

func TestStreamTrackerSpeed(t *testing.T) {
	st := NewStreamTracker("t", 10)
	st.lastTime = time.Now().Add(-time.Second)
	st.CompleteFrame(0, 4096)
	st.CompleteFrame(1, 4096)

	speed := st.UpdateSpeed()
	assert.InDelta(t, 8192, speed, 1024)
	assert.Positive(t, st.GetETA())
}

func TestProgressRendererFinal(t *testing.T) {
	st := NewStreamTracker("volumes", 2)
	st.CompleteFrame(0, 1<<20)
	st.CompleteFrame(1, 1<<20)

	var out bytes.Buffer
	pr := NewProgressRenderer(st, &out, false)
	pr.SetRefreshRate(time.Millisecond)
	go pr.Start()
	time.Sleep(5 * time.Millisecond)
	pr.StopAndWait()

	text := out.String()
	assert.Contains(t, text, "(2/2 frames)")
	assert.Contains(t, text, "2 frames (2.0 MiB) | Completed in")
}

func TestProgressRendererError(t *testing.T) {
	st := NewStreamTracker("volumes", 4)
	st.CompleteFrame(0, 10)
	st.FailFrame(1)

	var out bytes.Buffer
	pr := NewProgressRenderer(st, &out, false)
	go pr.Start()
	pr.StopAndWait()

	last := out.String()[strings.LastIndex(out.String(), "\r\033[K"):]
	assert.Contains(t, last, "Stream incomplete: 1/4 sent, 1 failed")
}

func TestProgressLineUnbounded(t *testing.T) {
	st := NewStreamTracker("live", 0)
	st.CompleteFrame(0, 2048)
	line := NewProgressRenderer(st, &bytes.Buffer{}, false).line()
	assert.Contains(t, line, "[live] 1 frames")
	assert.Contains(t, line, "2.0 KiB")
}
