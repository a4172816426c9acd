package kafkax

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

var errNoBrokers = errors.New("kafka brokers not configured")

// ReadyCheck asks the cluster for metadata and fails when no broker answers
// within two seconds or the cluster reports no brokers.
func ReadyCheck(brokers []string) func(context.Context) error {
	client := &kafka.Client{Addr: kafka.TCP(brokers...), Timeout: 2 * time.Second}
	return func(ctx context.Context) error {
		if len(brokers) == 0 {
			return errNoBrokers
		}
		meta, err := client.Metadata(ctx, &kafka.MetadataRequest{})
		if err != nil {
			return fmt.Errorf("kafka metadata: %w", err)
		}
		if len(meta.Brokers) == 0 {
			return errors.New("kafka cluster reports no brokers")
		}
		return nil
	}
}
