package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/muesli/termenv"
)

// newProgressBar draws a plain '|' bar so it can share a line with text
// written to stderr.
func newProgressBar() progress.Model {
	bar := progress.New(
		progress.WithWidth(progressBarWidth),
		progress.WithoutPercentage(),
		progress.WithColorProfile(termenv.Ascii),
	)
	bar.Full, bar.Empty = '|', ' '
	return bar
}

// progressLine renders one session as
// "name [||||    ]  42%   1min  5s 12.34Mbps".
func progressLine(bar progress.Model, s sessionSnapshot) string {
	frac := s.fraction()
	var b strings.Builder
	b.WriteString(displayName(s.name))
	b.WriteString(" [")
	b.WriteString(bar.ViewAs(math.Max(0, math.Min(frac, 1))))
	fmt.Fprintf(&b, "] %3d%%", int(frac*100))
	b.WriteString(" ")
	b.WriteString(formatETA(s.elapsed, s.done, s.total))
	if s.rateTime > 0 {
		b.WriteString(" ")
		b.WriteString(formatRate(float64(s.rateBytes) * 8 / s.rateTime.Seconds()))
	}
	return b.String()
}

func displayName(name string) string {
	if len(name) < progressNameMax {
		return name
	}
	return name[:26] + "..."
}

// formatETA extrapolates the time left from the average pace so far.
func formatETA(elapsed time.Duration, done, total uint64) string {
	var eta time.Duration
	if done > 0 && done < total {
		eta = time.Duration(float64(elapsed) * float64(total-done) / float64(done))
	}
	minutes := int64(eta / time.Minute)
	seconds := int64(eta%time.Minute) / int64(time.Second)
	return fmt.Sprintf("%3dmin %2ds", minutes, seconds)
}

func formatRate(bps float64) string {
	switch {
	case bps >= 1e9:
		return fmt.Sprintf("%5.4gGbps", bps/1e9)
	case bps >= 1e6:
		return fmt.Sprintf("%5.4gMbps", bps/1e6)
	case bps >= 1e3:
		return fmt.Sprintf("%5.4gKbps", bps/1e3)
	default:
		return fmt.Sprintf("%5dbps", int64(bps))
	}
}

// formatSummary reports a finished transfer, e.g.
// "300000 bytes sent in 1s 250ms (1.92Mbps)".
func formatSummary(n uint64, elapsed time.Duration, direction string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d bytes %s in ", n, direction)
	rem := elapsed
	if rem >= time.Minute {
		fmt.Fprintf(&b, "%dmin ", int64(rem/time.Minute))
		rem %= time.Minute
	}
	if rem >= time.Second {
		fmt.Fprintf(&b, "%ds ", int64(rem/time.Second))
		rem %= time.Second
	}
	if rem >= time.Millisecond {
		fmt.Fprintf(&b, "%dms", int64(rem/time.Millisecond))
	}
	line := strings.TrimRight(b.String(), " ")

	var bps float64
	if elapsed > 0 {
		bps = float64(n) * 8 / elapsed.Seconds()
	}
	switch {
	case bps >= 1e9:
		return fmt.Sprintf("%s (%.4gGbps)", line, bps/1e9)
	case bps >= 1e6:
		return fmt.Sprintf("%s (%.4gMbps)", line, bps/1e6)
	case bps >= 1e3:
		return fmt.Sprintf("%s (%.4gKbps)", line, bps/1e3)
	default:
		return fmt.Sprintf("%s (%.4gbps)", line, bps)
	}
}
