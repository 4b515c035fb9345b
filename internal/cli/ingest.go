package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/splitclock/splitclock/internal/classify"
	"github.com/splitclock/splitclock/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a JSONL event batch (stdin when no file given)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	var in io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	events, dropped := ingest.DecodeBatch(in)
	inserted, err := st.InsertEvents(events)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	// Conservative auto-assignment for any session this batch introduced.
	seen := map[string]struct{}{}
	var sessionIDs []string
	for _, e := range events {
		if e.SessionID == "" {
			continue
		}
		if _, ok := seen[e.SessionID]; ok {
			continue
		}
		seen[e.SessionID] = struct{}{}
		sessionIDs = append(sessionIDs, e.SessionID)
	}
	autoAssigned, err := classify.AutoAssign(st, sessionIDs)
	if err != nil {
		return fmt.Errorf("auto-assign: %w", err)
	}

	fmt.Printf("Ingested %d events (%d duplicates ignored, %d malformed dropped, %d sessions auto-assigned)\n",
		inserted, len(events)-inserted, dropped, autoAssigned)
	return nil
}
