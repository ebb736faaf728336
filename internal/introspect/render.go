package introspect

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/me/gowe/internal/scheduler"
)

// RenderText formats a Snapshot as an aligned plain-text table, the
// host-agnostic analogue of the two-column debug panel the original
// renders into a GUI widget. Graph counts are run through humanize.Comma
// so a pipeline with thousands of blocks still reads at a glance, and the
// snapshot's age is rendered as humanize.Time rather than a raw timestamp.
func RenderText(at time.Time, snap scheduler.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "recorded        %s\n", humanize.Time(at))
	fmt.Fprintf(&b, "graphs          %s\n", humanize.Comma(int64(snap.GraphCount)))
	fmt.Fprintf(&b, "stale modules   %s\n", humanize.Comma(int64(snap.StaleCount)))
	fmt.Fprintf(&b, "present modules %s\n", humanize.Comma(int64(snap.PresentCount)))
	fmt.Fprintf(&b, "compute modules %s\n", humanize.Comma(int64(snap.ComputeCount)))
	for _, g := range snap.Graphs {
		fmt.Fprintf(&b, "  [%s] %s\n", g.Device, strings.Join(g.Blocks, " -> "))
	}
	return b.String()
}
