package kafka

import (
	"context"
	"log/slog"
	"sort"

	"github.com/couchcryptid/radar-regrid/internal/config"
	"github.com/couchcryptid/radar-regrid/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes raster product events to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes the products of a batch in a single
// WriteMessages call.
func (w *Writer) LoadBatch(ctx context.Context, products []domain.RasterProduct) error {
	if len(products) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(products))
	for i := range products {
		msg, err := serializeToMessage(products[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a RasterProduct into a Kafka message. Headers
// are sorted by key so messages are reproducible.
func serializeToMessage(p domain.RasterProduct) (kafkago.Message, error) {
	ev, err := domain.NewProductEvent(p)
	if err != nil {
		return kafkago.Message{}, err
	}
	headers := make([]kafkago.Header, 0, len(ev.Headers))
	for k, v := range ev.Headers {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].Key < headers[j].Key })

	return kafkago.Message{
		Key:     ev.Key,
		Value:   ev.Value,
		Headers: headers,
	}, nil
}
