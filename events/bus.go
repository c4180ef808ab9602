package events

import (
	"fmt"

	"github.com/Ammar797/treatz-backend/config"

	"go.uber.org/zap"
)

// Open connects to the configured broker.
func Open(cfg config.BusConfig, producer string, logger *zap.Logger) (Bus, error) {
	switch cfg.Driver {
	case "rabbitmq":
		return NewRabbitBus(cfg.RabbitMQURL, cfg.Exchange, producer, cfg.Workers, logger)
	case "kafka":
		return NewKafkaBus(cfg.KafkaBrokers, producer, logger)
	case "memory":
		return NewMemoryBus(producer, cfg.Workers, logger), nil
	default:
		return nil, fmt.Errorf("unknown event bus driver %q", cfg.Driver)
	}
}
