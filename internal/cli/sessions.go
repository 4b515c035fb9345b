package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/splitclock/splitclock/internal/ingest"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage agent session records from the session index",
}

var sessionsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import JSONL agent session records",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsImport,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known agent sessions",
	RunE:  runSessionsList,
}

func init() {
	sessionsCmd.AddCommand(sessionsImportCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
}

func runSessionsImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, dropped := ingest.DecodeSessions(f)
	for i := range sessions {
		if err := st.UpsertAgentSession(&sessions[i]); err != nil {
			return fmt.Errorf("upsert session %s: %w", sessions[i].SessionID, err)
		}
	}
	fmt.Printf("Imported %d sessions (%d malformed dropped)\n", len(sessions), dropped)
	return nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.AgentSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No agent sessions recorded.")
		return nil
	}
	for _, s := range sessions {
		end := "open"
		if s.EndTime != nil {
			end = s.EndTime.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%s  %s  %s → %s  tools=%d prompts=%d  %s\n",
			color.CyanString(s.SessionID), s.SessionType,
			s.StartTime.Format("2006-01-02 15:04:05"), end,
			s.ToolCallCount, s.UserPromptCount, s.ProjectPath)
	}
	return nil
}
