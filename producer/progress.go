package producer

import (
	"sync"
	"time"
)

// FrameState is the delivery state of one streamed frame.
type FrameState int

const (
	FramePending FrameState = iota
	FrameSending
	FrameSent
	FrameFailed
)

func (s FrameState) String() string {
	switch s {
	case FramePending:
		return "pending"
	case FrameSending:
		return "sending"
	case FrameSent:
		return "sent"
	case FrameFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Icon returns an icon representation of the frame state
func (s FrameState) Icon() string {
	switch s {
	case FramePending:
		return "⏳"
	case FrameSending:
		return "↑"
	case FrameSent:
		return "✓"
	case FrameFailed:
		return "✗"
	default:
		return "?"
	}
}

// StreamTracker tracks the progress of one Stream call
type StreamTracker struct {
	mu          sync.RWMutex
	Name        string
	TotalFrames uint64 // 0 means unbounded
	StartTime   time.Time
	EndTime     time.Time

	sent      uint64
	failed    uint64
	bytesSent uint64
	states    map[int64]FrameState // time index -> state, only frames not yet sent

	// Speed calculation
	lastBytes    uint64
	lastTime     time.Time
	currentSpeed float64 // bytes/sec
	frameRate    float64 // frames/sec
	lastFrames   uint64
}

func NewStreamTracker(name string, totalFrames uint64) *StreamTracker {
	now := time.Now()
	return &StreamTracker{
		Name:        name,
		TotalFrames: totalFrames,
		StartTime:   now,
		lastTime:    now,
		states:      make(map[int64]FrameState),
	}
}

// StartFrame marks a frame as being written
func (st *StreamTracker) StartFrame(index int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.states[index] = FrameSending
}

// CompleteFrame records a frame of n payload bytes as sent
func (st *StreamTracker) CompleteFrame(index int64, n int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.states, index)
	st.sent++
	st.bytesSent += uint64(n)
}

// FailFrame records a frame that could not be sent
func (st *StreamTracker) FailFrame(index int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.states[index] = FrameFailed
	st.failed++
}

// FrameStatus returns the state of a frame. Frames that were sent are no longer tracked individually.
func (st *StreamTracker) FrameStatus(index int64) FrameState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if s, ok := st.states[index]; ok {
		return s
	}
	return FramePending
}

// UpdateSpeed recalculates throughput at most twice a second
func (st *StreamTracker) UpdateSpeed() float64 {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(st.lastTime).Seconds()
	if elapsed >= 0.5 {
		st.currentSpeed = float64(st.bytesSent-st.lastBytes) / elapsed
		st.frameRate = float64(st.sent-st.lastFrames) / elapsed
		st.lastBytes = st.bytesSent
		st.lastFrames = st.sent
		st.lastTime = now
	}
	return st.currentSpeed
}

// GetProgress returns: sent count, total count, speed (bytes/s), frame rate, failed count
func (st *StreamTracker) GetProgress() (sent, total uint64, speed, fps float64, failed uint64) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sent, st.TotalFrames, st.currentSpeed, st.frameRate, st.failed
}

func (st *StreamTracker) GetBytesSent() uint64 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.bytesSent
}

// GetETA estimates the time left from the current frame rate. Zero when unknown.
func (st *StreamTracker) GetETA() time.Duration {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if st.TotalFrames == 0 || st.frameRate <= 0 || st.sent >= st.TotalFrames {
		return 0
	}
	remaining := float64(st.TotalFrames - st.sent - min(st.failed, st.TotalFrames-st.sent))
	return time.Duration(remaining / st.frameRate * float64(time.Second))
}

// IsComplete reports whether every frame was sent
func (st *StreamTracker) IsComplete() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.TotalFrames > 0 && st.sent == st.TotalFrames
}

func (st *StreamTracker) MarkComplete() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.EndTime = time.Now()
}

// GetElapsedTime returns the elapsed time since the stream started
func (st *StreamTracker) GetElapsedTime() time.Duration {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if !st.EndTime.IsZero() {
		return st.EndTime.Sub(st.StartTime)
	}
	return time.Since(st.StartTime)
}
