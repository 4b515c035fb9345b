package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var streamTags []string

var streamsCmd = &cobra.Command{
	Use:   "streams",
	Short: "Manage work streams",
}

var streamsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List streams with materialized totals",
	RunE:  runStreamsList,
}

var streamsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a stream",
	Args:  cobra.ExactArgs(1),
	RunE:  runStreamsCreate,
}

func init() {
	streamsCreateCmd.Flags().StringSliceVar(&streamTags, "tag", nil, "Tag to attach (repeatable)")
	streamsCmd.AddCommand(streamsListCmd)
	streamsCmd.AddCommand(streamsCreateCmd)
}

func runStreamsList(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	streams, err := st.ListStreams()
	if err != nil {
		return err
	}
	if len(streams) == 0 {
		fmt.Println("No streams. Create one with `splitclock streams create <name>`.")
		return nil
	}
	for _, s := range streams {
		flag := ""
		if s.NeedsRecompute {
			flag = color.YellowString(" (needs recompute)")
		}
		tags := ""
		if len(s.Tags) > 0 {
			tags = "  [" + strings.Join(s.Tags, ", ") + "]"
		}
		fmt.Printf("%-30s  direct %-10s  delegated %-10s%s%s\n",
			color.CyanString(s.Name), fmtMS(s.TimeDirectMS), fmtMS(s.TimeDelegatedMS), tags, flag)
	}
	return nil
}

func runStreamsCreate(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	stream, err := st.EnsureStream(st.DB(), args[0], streamTags)
	if err != nil {
		return err
	}
	fmt.Printf("Stream %s (%s)\n", stream.Name, stream.ID)
	return nil
}
