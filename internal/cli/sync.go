package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/splitclock/splitclock/internal/ingest"
	"github.com/splitclock/splitclock/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Move event batches between machines over Kafka",
}

var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Consume events from the sync topic until interrupted",
	RunE:  runSyncRun,
}

var syncPublishCmd = &cobra.Command{
	Use:   "publish <file>",
	Short: "Publish a JSONL event batch to the sync topic",
	Args:  cobra.ExactArgs(1),
	RunE:  runSyncPublish,
}

func init() {
	syncCmd.AddCommand(syncRunCmd)
	syncCmd.AddCommand(syncPublishCmd)
}

func runSyncRun(cmd *cobra.Command, args []string) error {
	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	if cfg.Sync.Brokers == "" {
		return fmt.Errorf("sync.brokers not configured")
	}

	consumer := syncer.NewConsumer(syncer.Config{
		Brokers:       cfg.Sync.Brokers,
		Topic:         cfg.Sync.Topic,
		ConsumerGroup: cfg.Sync.ConsumerGroup,
	}, st)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printHeader("Event sync")
	return consumer.Run(ctx)
}

func runSyncPublish(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigOnly()
	if err != nil {
		return err
	}
	if cfg.Sync.Brokers == "" {
		return fmt.Errorf("sync.brokers not configured")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var records []ingest.Record
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec ingest.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			fmt.Printf("skipping malformed line: %v\n", err)
			continue
		}
		records = append(records, rec)
	}

	publisher := syncer.NewPublisher(syncer.Config{Brokers: cfg.Sync.Brokers, Topic: cfg.Sync.Topic})
	defer publisher.Close()

	if err := publisher.Publish(context.Background(), records); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	fmt.Printf("Published %d records to %s\n", len(records), cfg.Sync.Topic)
	return nil
}
