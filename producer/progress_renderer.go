package producer

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ANSI color codes for terminal output
const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Cyan   = "\033[36m"
	Bold   = "\033[1m"
)

// ProgressRenderer draws a StreamTracker as a single refreshing terminal line
type ProgressRenderer struct {
	tracker     *StreamTracker
	out         io.Writer
	stopChan    chan struct{}
	doneChan    chan struct{}
	refreshRate time.Duration
	useColors   bool
	width       int
}

func NewProgressRenderer(tracker *StreamTracker, out io.Writer, useColors bool) *ProgressRenderer {
	return &ProgressRenderer{
		tracker:     tracker,
		out:         out,
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
		refreshRate: 200 * time.Millisecond,
		useColors:   useColors,
		width:       40, // Progress bar width
	}
}

func (pr *ProgressRenderer) SetRefreshRate(rate time.Duration) {
	pr.refreshRate = rate
}

func (pr *ProgressRenderer) SetWidth(width int) {
	pr.width = width
}

// Start runs the render loop until Stop or StopAndWait
func (pr *ProgressRenderer) Start() {
	defer close(pr.doneChan)
	pr.Render()

	ticker := time.NewTicker(pr.refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pr.tracker.UpdateSpeed()
			pr.Render()
		case <-pr.stopChan:
			return
		}
	}
}

// Stop signals the renderer to stop (does not wait for completion)
func (pr *ProgressRenderer) Stop() {
	close(pr.stopChan)
}

// StopAndWait stops the loop started by Start, waits for it and prints the final line
func (pr *ProgressRenderer) StopAndWait() {
	close(pr.stopChan)
	<-pr.doneChan
	_, total, _, _, failed := pr.tracker.GetProgress()
	if failed == 0 && (total == 0 || pr.tracker.IsComplete()) {
		pr.RenderFinal()
	} else {
		pr.RenderError()
	}
}

func (pr *ProgressRenderer) Render() {
	fmt.Fprint(pr.out, pr.line())
}

func (pr *ProgressRenderer) line() string {
	sent, total, speed, fps, failed := pr.tracker.GetProgress()
	speedStr := humanize.IBytes(uint64(speed))

	var line string
	if total == 0 {
		// unbounded stream: no bar
		if pr.useColors {
			line = fmt.Sprintf("\r%s[%s]%s %s%d frames%s | %s/s | %.1f fps | %s",
				Cyan, pr.tracker.Name, Reset, Yellow, sent, Reset,
				Blue+speedStr+Reset, fps, humanize.IBytes(pr.tracker.GetBytesSent()))
		} else {
			line = fmt.Sprintf("\r[%s] %d frames | %s/s | %.1f fps | %s",
				pr.tracker.Name, sent, speedStr, fps, humanize.IBytes(pr.tracker.GetBytesSent()))
		}
	} else {
		percent := float64(sent) / float64(total) * 100
		filled := int(float64(pr.width) * percent / 100)
		if filled > pr.width {
			filled = pr.width
		}
		bar := strings.Repeat("█", filled) + strings.Repeat("░", pr.width-filled)
		eta := formatETA(pr.tracker.GetETA())

		if pr.useColors {
			line = fmt.Sprintf("\r%s[%s]%s [%s]%s %.1f%% (%d/%d frames)%s | %s/s | %.1f fps | ETA: %s",
				Cyan, pr.tracker.Name, Reset,
				Green+bar+Reset,
				Yellow, percent, sent, total, Reset,
				Blue+speedStr+Reset, fps, eta,
			)
		} else {
			line = fmt.Sprintf("\r[%s] [%s] %.1f%% (%d/%d frames) | %s/s | %.1f fps | ETA: %s",
				pr.tracker.Name, bar, percent, sent, total, speedStr, fps, eta,
			)
		}
	}

	if failed > 0 {
		if pr.useColors {
			line += Red + fmt.Sprintf(" | %d failed", failed) + Reset
		} else {
			line += fmt.Sprintf(" | %d failed", failed)
		}
	}
	return line
}

func (pr *ProgressRenderer) RenderFinal() {
	sent, _, _, _, _ := pr.tracker.GetProgress()
	elapsed := pr.tracker.GetElapsedTime()

	fmt.Fprint(pr.out, "\r\033[K")
	if pr.useColors {
		fmt.Fprintf(pr.out, "%s[%s]%s %s%d frames (%s)%s | Completed in %s\n",
			Cyan, pr.tracker.Name, Reset,
			Green, sent, humanize.IBytes(pr.tracker.GetBytesSent()), Reset,
			formatDuration(elapsed))
	} else {
		fmt.Fprintf(pr.out, "[%s] %d frames (%s) | Completed in %s\n",
			pr.tracker.Name, sent, humanize.IBytes(pr.tracker.GetBytesSent()), formatDuration(elapsed))
	}
}

func (pr *ProgressRenderer) RenderError() {
	sent, total, _, _, failed := pr.tracker.GetProgress()

	fmt.Fprint(pr.out, "\r\033[K")
	if pr.useColors {
		fmt.Fprintf(pr.out, "%s[%s]%s [%s] %sStream incomplete%s: %d/%d sent, %d failed\n",
			Cyan, pr.tracker.Name, Reset, Red+"✗"+Reset, Red+Bold, Reset, sent, total, failed)
	} else {
		fmt.Fprintf(pr.out, "[%s] [✗] Stream incomplete: %d/%d sent, %d failed\n",
			pr.tracker.Name, sent, total, failed)
	}
}

// formatETA formats an estimated time into a human-readable string
func formatETA(eta time.Duration) string {
	if eta <= 0 {
		return "∞"
	}
	if eta < time.Second {
		return "<1s"
	}
	return formatDuration(eta)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", d/time.Second)
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", d/time.Minute, (d%time.Minute)/time.Second)
	}
	return fmt.Sprintf("%dh%dm", d/time.Hour, (d%time.Hour)/time.Minute)
}
