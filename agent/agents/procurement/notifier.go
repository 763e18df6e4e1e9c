package procurement

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	"github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/pkg/qstash"
)

// NopNotifier only logs new approval requests.
type NopNotifier struct{}

func (NopNotifier) ApprovalRequested(ctx context.Context, req contractx.ApprovalRequest) error {
	log.Ctx(ctx).Debug().Str("approval_id", req.ID).Msg("approval requested")
	return nil
}

type publisher interface {
	Publish(ctx context.Context, destination string, body any) (qstash.PublishResponse, error)
}

// QStashNotifier publishes each approval request to a QStash destination so
// an approver-facing service can pick it up.
type QStashNotifier struct {
	client      publisher
	destination string
}

func NewQStashNotifier(client *qstash.Client, destination string) (*QStashNotifier, error) {
	if client == nil {
		return nil, errors.New("qstash client is required")
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, errors.New("qstash destination is required")
	}
	return &QStashNotifier{client: client, destination: destination}, nil
}

func (n *QStashNotifier) ApprovalRequested(ctx context.Context, req contractx.ApprovalRequest) error {
	resp, err := n.client.Publish(ctx, n.destination, req)
	if err != nil {
		return err
	}
	log.Ctx(ctx).Info().
		Str("approval_id", req.ID).
		Str("message_id", resp.MessageID).
		Msg("approval request published")
	return nil
}
