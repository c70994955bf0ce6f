package storage

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

const insertQueryEvents = `
	INSERT INTO risk_query_events (
		request_id, project_id, timestamp, tool_name, fragment,
		outcome, matched_ids, succeeded, failed,
		output_bytes, latency_ms, source
	)
`

// batchConn is the subset of driver.Conn the writer uses.
type batchConn interface {
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
	Close() error
}

// ClickHouseWriter writes query events to ClickHouse asynchronously.
// Write() is non-blocking; events are buffered and batch-inserted in a
// background goroutine.
type ClickHouseWriter struct {
	conn    batchConn
	buffer  chan *QueryEvent
	done    chan struct{}
	flushed chan struct{}
	logger  *zap.Logger
}

// NewClickHouseWriter connects to ClickHouse and starts the flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	if opts.TLS == nil {
		opts.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return newClickHouseWriter(conn, logger), nil
}

func newClickHouseWriter(conn batchConn, logger *zap.Logger) *ClickHouseWriter {
	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *QueryEvent, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}
	go w.flushLoop()
	return w
}

// Write queues an event. Drops it when the buffer is full.
func (w *ClickHouseWriter) Write(event *QueryEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn("clickhouse buffer full, dropping event",
			zap.String("request_id", event.RequestID),
		)
	}
}

// Close drains buffered events and closes the connection.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
	if err := w.conn.Close(); err != nil {
		w.logger.Warn("clickhouse close failed", zap.Error(err))
	}
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*QueryEvent, 0, flushBatch)

	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case event := <-w.buffer:
					batch = append(batch, event)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(events []*QueryEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, insertQueryEvents)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range events {
		if err := batch.Append(
			e.RequestID,
			e.ProjectID,
			e.Timestamp,
			e.ToolName,
			TruncateFragment(e.Fragment, FragmentPreviewLength),
			e.Outcome,
			e.MatchedIDs,
			e.Succeeded,
			e.Failed,
			e.OutputBytes,
			e.LatencyMs,
			e.Source,
		); err != nil {
			w.logger.Error("clickhouse append event failed",
				zap.String("request_id", e.RequestID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

// LogWriter is the EventWriter used when ClickHouse is not configured.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *QueryEvent) {
	w.logger.Info("risk_query_event",
		zap.String("request_id", event.RequestID),
		zap.String("project_id", event.ProjectID),
		zap.String("tool_name", event.ToolName),
		zap.String("fragment", TruncateFragment(event.Fragment, FragmentPreviewLength)),
		zap.String("outcome", event.Outcome),
		zap.Strings("matched_ids", event.MatchedIDs),
		zap.Uint32("succeeded", event.Succeeded),
		zap.Uint32("failed", event.Failed),
		zap.Float32("latency_ms", event.LatencyMs),
		zap.String("source", event.Source),
	)
}

func (w *LogWriter) Close() {}
