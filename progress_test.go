package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatSummary(t *testing.T) {
	tests := []struct {
		n         uint64
		elapsed   time.Duration
		direction string
		want      string
	}{
		{300000, 1250 * time.Millisecond, "sent", "300000 bytes sent in 1s 250ms (1.92Mbps)"},
		{1 << 30, 2*time.Minute + 3*time.Second, "received", "1073741824 bytes received in 2min 3s (69.84Mbps)"},
		{10, 0, "received", "10 bytes received in (0bps)"},
		{1000, 2 * time.Second, "sent", "1000 bytes sent in 2s (4Kbps)"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, formatSummary(tt.n, tt.elapsed, tt.direction))
	}
}

func TestFormatETA(t *testing.T) {
	require.Equal(t, "  0min 30s", formatETA(10*time.Second, 25, 100))
	require.Equal(t, "  2min  0s", formatETA(time.Minute, 1, 3))
	require.Equal(t, "  0min  0s", formatETA(time.Second, 0, 100))
	require.Equal(t, "  0min  0s", formatETA(time.Second, 200, 100))
}

func TestFormatRate(t *testing.T) {
	require.Equal(t, "12.34Mbps", formatRate(12.34e6))
	require.Equal(t, "  1.5Gbps", formatRate(1.5e9))
	require.Equal(t, "    2Kbps", formatRate(2000))
	require.Equal(t, "  500bps", formatRate(500))
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "short.txt", displayName("short.txt"))
	long := strings.Repeat("n", 40)
	require.Equal(t, strings.Repeat("n", 26)+"...", displayName(long))
	require.Len(t, displayName(strings.Repeat("m", progressNameMax)), 29)
}

func TestProgressLine(t *testing.T) {
	line := progressLine(newProgressBar(), sessionSnapshot{
		name:      "report.pdf",
		done:      50,
		total:     100,
		elapsed:   10 * time.Second,
		rateBytes: 125000,
		rateTime:  time.Second,
	})
	require.True(t, strings.HasPrefix(line, "report.pdf ["))
	require.Contains(t, line, "]  50% ")
	require.Contains(t, line, "  0min 10s")
	require.True(t, strings.HasSuffix(line, "    1Mbps"))

	// more than declared clamps the bar but not the percentage
	over := progressLine(newProgressBar(), sessionSnapshot{name: "x", done: 500, total: 100})
	require.Contains(t, over, "] 500% ")
}

func TestProgressBarCharacters(t *testing.T) {
	bar := newProgressBar()
	require.Equal(t, '|', bar.Full)
	require.Equal(t, ' ', bar.Empty)

	line := progressLine(bar, sessionSnapshot{name: "half", done: 50, total: 100})
	require.Contains(t, line, "["+strings.Repeat("|", progressBarWidth/2)+strings.Repeat(" ", progressBarWidth/2)+"]")
}
