package kafkax

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// ReadyCheck dials the first broker. It returns nil when brokers is empty so
// deployments without Kafka still report ready.
func ReadyCheck(brokers []string) func(context.Context) error {
	if len(brokers) == 0 {
		return nil
	}
	return func(ctx context.Context) error {
		dialer := kafka.Dialer{Timeout: 2 * time.Second}
		conn, err := dialer.DialContext(ctx, "tcp", brokers[0])
		if err != nil {
			return err
		}
		_ = conn.Close()
		return nil
	}
}
