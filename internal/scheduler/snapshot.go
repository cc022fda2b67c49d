package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// DiagnosticSnapshot renders the current scheduler state as a short,
// human-readable summary — for logs and support requests, not for
// programmatic consumption (use GetContextInfo for that).
func (s *Scheduler) DiagnosticSnapshot() string {
	info := s.GetContextInfo()

	var b strings.Builder
	fmt.Fprintf(&b, "focus=%s scheduled=%d", info.Focus, len(info.Scheduled))
	if info.Active != nil {
		fmt.Fprintf(&b, " active=%s(%s, due %s)", info.Active.Token, info.Active.State,
			humanize.Time(time.Unix(info.Active.ScheduledUnix, 0)))
	} else {
		b.WriteString(" active=none")
	}
	for _, a := range info.Scheduled {
		if info.Active != nil && a.Token == info.Active.Token {
			continue
		}
		fmt.Fprintf(&b, "\n  %s type=%s fires %s", a.Token, a.TypeName,
			humanize.Time(time.Unix(a.ScheduledUnix, 0)))
	}
	return b.String()
}
