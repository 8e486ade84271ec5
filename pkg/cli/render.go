package cli

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/m-mizutani/momentseek/pkg/model"
)

var sparkLevels = []rune(" ▁▂▃▄▅▆▇█")

// formatTimestamp renders seconds as m:ss.s or h:mm:ss.s
func formatTimestamp(sec float64) string {
	if math.IsNaN(sec) || math.IsInf(sec, 0) {
		return "--:--"
	}
	if sec < 0 {
		sec = 0
	}
	h := int(sec) / 3600
	m := int(sec) % 3600 / 60
	s := math.Mod(sec, 60)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%04.1f", h, m, s)
	}
	return fmt.Sprintf("%d:%04.1f", m, s)
}

func formatPercent(conf float64) string {
	if math.IsNaN(conf) {
		return "  n/a"
	}
	return fmt.Sprintf("%4.0f%%", conf*100)
}

func formatSegment(seg model.Segment) string {
	return fmt.Sprintf("%s - %s  %s",
		formatTimestamp(seg.StartTime),
		formatTimestamp(seg.EndTime),
		formatPercent(seg.Confidence))
}

// sparkline compresses the timeline into width columns, each showing the
// maximum displayed confidence of its samples.
func sparkline(tl *model.Timeline, width int) string {
	if tl == nil || len(tl.Points) == 0 || width <= 0 {
		return ""
	}
	if width > len(tl.Points) {
		width = len(tl.Points)
	}

	var b strings.Builder
	for col := 0; col < width; col++ {
		from := col * len(tl.Points) / width
		to := (col + 1) * len(tl.Points) / width
		peak := 0.0
		for _, p := range tl.Points[from:to] {
			peak = math.Max(peak, p.DisplayConfidence())
		}
		level := int(math.Round(peak * float64(len(sparkLevels)-1)))
		b.WriteRune(sparkLevels[level])
	}
	return b.String()
}

func printResults(w io.Writer, rs model.ResultSet, top int) {
	if rs.Empty() {
		fmt.Fprintln(w, "No matching moment found in the video.")
		return
	}

	fmt.Fprintln(w, "Top predictions:")
	for i, seg := range rs.Top(top) {
		fmt.Fprintf(w, "  #%d  %s\n", i+1, formatSegment(seg))
	}
	if rest := len(rs) - top; rest > 0 {
		fmt.Fprintf(w, "  (%d more)\n", rest)
	}
}

func printTimeline(w io.Writer, tl *model.Timeline) {
	if tl == nil {
		return
	}
	fmt.Fprintf(w, "Timeline: |%s|\n", sparkline(tl, 60))
	fmt.Fprintf(w, "          0:00.0%s%s\n",
		strings.Repeat(" ", max(1, 62-len("0:00.0")-len(formatTimestamp(tl.Duration)))),
		formatTimestamp(tl.Duration))
	if tl.Degraded {
		fmt.Fprintln(w, "          (video duration unknown, timeline scaled to fallback duration)")
	}
}

func printEntry(w io.Writer, e *model.HistoryEntry) {
	fmt.Fprintf(w, "ID:       %s\n", e.ID)
	fmt.Fprintf(w, "Created:  %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Query:    %s\n", e.QueryText)
	fmt.Fprintf(w, "Video:    %s\n", e.VideoLabel)
	if e.AuxDocumentLabel != nil {
		fmt.Fprintf(w, "Document: %s\n", *e.AuxDocumentLabel)
	}
}

// printError writes the user-safe summary next to the original detail
func printError(w io.Writer, prefix string, err error) {
	fmt.Fprintf(w, "%s: %s\n", prefix, model.Summary(err))
	fmt.Fprintf(w, "  detail: %s\n", err.Error())
}
