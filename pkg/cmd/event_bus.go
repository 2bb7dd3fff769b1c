package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/flowsmith/flowsmith/pkg/channels/gochannel"
	"github.com/flowsmith/flowsmith/pkg/channels/kafka"
	"github.com/flowsmith/flowsmith/pkg/eventbus"
)

// NewEventBus creates the event bus for the given provider. gochannel keeps
// everything in process and suits single-binary deployments; kafka is the
// production transport.
func NewEventBus(provider, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName)
		if err != nil {
			return nil, fmt.Errorf("creating kafka channel: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil

	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("creating gochannel channel: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil

	default:
		return nil, fmt.Errorf("unsupported event bus provider %q", provider)
	}
}
