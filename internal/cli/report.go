package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/splitclock/splitclock/internal/engine"
)

var (
	reportFrom string
	reportTo   string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print per-stream direct/delegated time over a range",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportFrom, "from", "", "Range start (RFC3339 or YYYY-MM-DD)")
	reportCmd.Flags().StringVar(&reportTo, "to", "", "Range end (default now)")
	reportCmd.MarkFlagRequired("from")
}

func runReport(cmd *cobra.Command, args []string) error {
	from, err := parseWhen(reportFrom)
	if err != nil {
		return err
	}
	until := time.Now().UTC()
	if reportTo != "" {
		if until, err = parseWhen(reportTo); err != nil {
			return err
		}
	}

	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	events, err := st.EventsUntil(until)
	if err != nil {
		return err
	}
	sessions, err := st.AgentSessions()
	if err != nil {
		return err
	}
	knownEnds := map[string]time.Time{}
	for sid, s := range sessions {
		if s.EndTime != nil {
			knownEnds[sid] = *s.EndTime
		}
	}

	totals := engine.AllocateWithApps(events, knownEnds,
		engine.Range{Start: from, End: until},
		engine.Params{AttentionWindowMS: cfg.Engine.AttentionWindowMS, SessionTimeoutMS: cfg.Engine.SessionTimeoutMS},
		engine.NewAppClasses(cfg.Apps.TerminalApps, cfg.Apps.BrowserApps))

	streams, err := st.ListStreams()
	if err != nil {
		return err
	}

	printHeader(fmt.Sprintf("Report %s → %s", from.Format("2006-01-02 15:04"), until.Format("2006-01-02 15:04")))
	var totalDirect, totalDelegated int64
	for _, stream := range streams {
		t, ok := totals[stream.ID]
		if !ok {
			continue
		}
		fmt.Printf("%-30s  direct %-10s  delegated %-10s\n",
			color.CyanString(stream.Name), fmtMS(t.DirectMS), fmtMS(t.DelegatedMS))
		totalDirect += t.DirectMS
		totalDelegated += t.DelegatedMS
	}
	if totalDirect == 0 && totalDelegated == 0 {
		fmt.Println("No attributable time in range.")
		return nil
	}
	fmt.Printf("%-30s  direct %-10s  delegated %-10s\n", "total", fmtMS(totalDirect), fmtMS(totalDelegated))
	return nil
}

func fmtMS(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return d.Truncate(time.Second).String()
}
