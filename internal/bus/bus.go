package bus

import (
	"fmt"

	"github.com/openbk/tariff/internal/domain"
)

// New creates a new event bus based on configuration.
// Single-node deployments use Go channels; multi-process deployments use
// NATS so the analytics consumers can run out of process.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
