package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sys/unix"

	"photoflow/internal/cache"
)

const dialTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckRedis verifies that the Redis server answers PING.
func CheckRedis(ctx context.Context, addr, password string, db int) Result {
	const name = "Redis"
	if addr == "" {
		return Result{Name: name, Detail: "missing address"}
	}
	client, err := cache.Dial(ctx, addr, password, db)
	if err != nil {
		return Result{Name: name, Detail: summarizeDialError(addr, err)}
	}
	_ = client.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", addr)}
}

// CheckKafka verifies that at least one broker accepts a connection and
// reports the topic's partitions.
func CheckKafka(ctx context.Context, brokers []string, topic string) Result {
	const name = "Kafka"
	if len(brokers) == 0 {
		return Result{Name: name, Detail: "no brokers configured"}
	}
	var lastErr error
	for _, broker := range brokers {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		conn, err := kafka.DialContext(dialCtx, "tcp", broker)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		partitions, err := conn.ReadPartitions(topic)
		_ = conn.Close()
		if err != nil {
			return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable; topic %s not readable: %v)", broker, topic, err)}
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (topic %s, %d partitions)", broker, topic, len(partitions))}
	}
	return Result{Name: name, Detail: summarizeDialError(brokers[len(brokers)-1], lastErr)}
}

func summarizeDialError(addr string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s (error: timed out)", addr)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("%s (error: timed out)", addr)
	}
	return fmt.Sprintf("%s (error: %v)", addr, err)
}
