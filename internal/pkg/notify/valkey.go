package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/do/v2"
	"github.com/usdfg/arena/internal/pkg/common"
	"github.com/valkey-io/valkey-go"
)

const Channel = "arena:notifications"

// ValkeyPublisher fans notifications out over valkey pub/sub so every server
// instance sees the other instances' events.
type ValkeyPublisher struct {
	client valkey.Client
	logger *slog.Logger
}

func NewValkeyPublisher(address string, logger *slog.Logger) (*ValkeyPublisher, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{address},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	return &ValkeyPublisher{
		client: client,
		logger: logger,
	}, nil
}

// NewPublisher picks valkey when an address is configured and the in-process
// broadcaster otherwise.
func NewPublisher(i do.Injector) (Publisher, error) {
	address := do.MustInvokeNamed[string](i, "valkey-address")
	if address == "" {
		return NewBroadcaster(), nil
	}

	return NewValkeyPublisher(address, common.Logger(i).With("service", "valkey"))
}

func (p *ValkeyPublisher) Publish(ctx context.Context, n Notification) error {
	payload, err := encode(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	err = p.client.Do(ctx, p.client.B().Publish().Channel(Channel).Message(string(payload)).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}

func (p *ValkeyPublisher) Subscribe(ctx context.Context) (<-chan Notification, error) {
	ch := make(chan Notification, subscriberBuffer)

	go func() {
		defer close(ch)

		err := p.client.Receive(ctx, p.client.B().Subscribe().Channel(Channel).Build(), func(msg valkey.PubSubMessage) {
			n, err := decode(msg.Message)
			if err != nil {
				p.logger.Warn("dropping malformed notification", "error", err)

				return
			}

			select {
			case ch <- n:
			default:
			}
		})
		if err != nil && ctx.Err() == nil {
			p.logger.Error("valkey subscription ended", "error", err)
		}
	}()

	return ch, nil
}

func (p *ValkeyPublisher) Shutdown() {
	p.client.Close()
}
