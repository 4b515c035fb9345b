package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/splitclock/splitclock/internal/classify"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Assign events to streams",
}

var classifyApplyCmd = &cobra.Command{
	Use:   "apply <doc.yaml>",
	Short: "Apply a classification document (all-or-nothing)",
	Args:  cobra.ExactArgs(1),
	RunE:  runClassifyApply,
}

var classifyCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run split-session validation",
	RunE:  runClassifyCheck,
}

func init() {
	classifyCmd.AddCommand(classifyApplyCmd)
	classifyCmd.AddCommand(classifyCheckCmd)
}

func runClassifyApply(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	doc, err := classify.Parse(data)
	if err != nil {
		return err
	}

	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := classify.Apply(st, doc)
	if err != nil {
		return fmt.Errorf("apply failed, nothing assigned: %w", err)
	}
	fmt.Printf("Applied: %d streams created, %d events assigned, %d user-corrected events skipped\n",
		res.StreamsCreated, res.Assigned, res.Skipped)
	return nil
}

func runClassifyCheck(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	warnings, err := classify.SplitWarnings(st)
	if err != nil {
		return err
	}
	if len(warnings) == 0 {
		fmt.Println(color.GreenString("No split sessions."))
		return nil
	}
	for _, w := range warnings {
		fmt.Println(color.YellowString("warning: " + w))
	}
	return nil
}
