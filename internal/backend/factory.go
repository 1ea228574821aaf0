package backend

import (
	"context"
	"errors"
	"fmt"

	"entregas/internal/amqp"
	"entregas/internal/log"
	"entregas/internal/metrics"
	"entregas/internal/storage"
	"entregas/internal/storage/memory"
	"entregas/internal/storage/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger  *log.Logger
	metrics *metrics.Metrics
}

// NewFactory creates a backend factory. m may be nil to skip instrumentation.
func NewFactory(logger *log.Logger, m *metrics.Metrics) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger:  logger.WithComponent(log.ComponentBackend),
		metrics: m,
	}
}

// CreateBackend opens the configured store. A store that cannot be opened is
// returned as storage.ErrStorageUnavailable; AMQP failures only disable change events.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var store storage.Store
	switch config.Type {
	case SQLiteBackend:
		store = sqlite.New(config.SQLiteDBPath)
	case MemoryBackend:
		store = memory.NewStore()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if f.metrics != nil {
		store = metrics.InstrumentStore(store, f.metrics)
	}

	if err := store.Open(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("open %s store: %w", config.Type, err)
	}

	result := &BackendResult{Store: store}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without change events", log.FieldError, err.Error())
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			result.AMQP = client
			result.Notifier = &countingNotifier{client: client, metrics: f.metrics}
		}
	}

	result.Cleanup = func() error {
		var errs []error
		if result.AMQP != nil {
			if err := result.AMQP.Close(); err != nil {
				errs = append(errs, fmt.Errorf("amqp: %w", err))
			}
		}
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
		return errors.Join(errs...)
	}

	f.logger.Info("Initialized backend",
		"type", config.Type.String(),
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", result.AMQP != nil,
		"metrics_enabled", f.metrics != nil)
	return result, nil
}

type countingNotifier struct {
	client  *amqp.Client
	metrics *metrics.Metrics
}

func (n *countingNotifier) PublishChange(ctx context.Context, ev *amqp.ChangeEvent) error {
	err := n.client.PublishChange(ctx, ev)
	if n.metrics != nil {
		n.metrics.ChangeEvent("out", err)
	}
	return err
}
