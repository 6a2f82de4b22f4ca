//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/radar-regrid/internal/adapter/catalog"
	"github.com/couchcryptid/radar-regrid/internal/adapter/kafka"
	"github.com/couchcryptid/radar-regrid/internal/config"
	"github.com/couchcryptid/radar-regrid/internal/domain"
	"github.com/couchcryptid/radar-regrid/internal/observability"
	"github.com/couchcryptid/radar-regrid/internal/pipeline"
	"github.com/couchcryptid/radar-regrid/internal/projection"
	"github.com/couchcryptid/radar-regrid/internal/raster"
	"github.com/couchcryptid/radar-regrid/internal/regrid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSourceTopic = "test-sweeps"
	testSinkTopic   = "test-products"
)

// productMessage holds a deserialized message read from the sink topic.
type productMessage struct {
	Product domain.RasterProduct
	Key     string
	Headers map[string]string
}

func readProduct(ctx context.Context, t *testing.T, consumer *kafkago.Reader) productMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var p domain.RasterProduct
	require.NoError(t, json.Unmarshal(msg.Value, &p), "unmarshal sink message")

	return productMessage{Product: p, Key: string(msg.Key), Headers: headers}
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func newRegridder(t *testing.T, metrics *observability.Metrics) *regrid.Regridder {
	t.Helper()
	r, err := regrid.New(regrid.Options{
		Grid:        domain.GridSpec{CRS: projection.LonLat, Resolution: 0.005},
		MaxDistance: math.Inf(1),
		Workers:     2,
		CacheSize:   4,
		NoData:      -9999,
		OutputDir:   t.TempDir(),
		Writer:      raster.ASCIIGridWriter{Precision: 2},
	}, metrics, discardLogger())
	require.NoError(t, err)
	return r
}

func newSinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaReaderWriter round-trips a sweep through kafka.Reader, the
// transformer and kafka.Writer.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-reader")

	payload := loadSweepFixture(t)
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{Key: []byte("KTLX"), Value: payload}))

	// The consumer group may need time to rebalance before partitions are assigned.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for len(batch) == 0 {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for sweep on source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("KTLX"), raw.Key)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit)
	require.NoError(t, raw.Commit(ctx))

	metrics := observability.NewMetricsForTesting()
	transformer := pipeline.NewTransformer(newRegridder(t, metrics), nil, discardLogger())
	products, err := transformer.Transform(ctx, raw)
	require.NoError(t, err)
	require.Len(t, products, 2)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, products))

	consumer := newSinkConsumer(t, broker)
	pm := readProduct(ctx, t, consumer)
	assert.Equal(t, "KTLX", pm.Headers["site_id"])
	assert.Equal(t, "DBZH", pm.Headers["moment"])
	_, err = time.Parse(time.RFC3339, pm.Headers["processed_at"])
	assert.NoError(t, err, "processed_at should be valid RFC3339")
	assert.Equal(t, pm.Product.ID, pm.Key)
	assert.Positive(t, pm.Product.ValidCells)
	assert.Len(t, pm.Product.Files, 1)
}

// TestPipelineEndToEnd runs the full pipeline into both the catalog and the
// sink topic, including a poison message that must be skipped.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-pipeline")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("KTLX"), Value: loadSweepFixture(t)},
	))

	store, err := catalog.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	transformer := pipeline.NewTransformer(newRegridder(t, metrics), nil, discardLogger())
	loader := pipeline.FanoutLoader{
		{Name: "catalog", Loader: store},
		{Name: "kafka", Loader: writer},
	}
	p := pipeline.New(reader, transformer, loader, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := newSinkConsumer(t, broker)
	moments := map[string]bool{}
	for range 2 {
		pm := readProduct(ctx, t, consumer)
		moments[pm.Product.Moment] = true
		assert.Equal(t, "KTLX", pm.Product.SiteID)
	}
	assert.Equal(t, map[string]bool{"DBZH": true, "VRADH": true}, moments)

	// Nothing else should arrive: the poison message was skipped.
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no third message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)

	listed, err := store.List(ctx, catalog.Filter{SiteID: "KTLX"})
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}
