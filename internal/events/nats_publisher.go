package events

import (
	"context"
	"encoding/json"
	"log"

	"ticket-backend/internal/clients"
	"ticket-backend/internal/metrics"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes domain events on <prefix>.<type>
type NATSPublisher struct {
	client *clients.NATSClient
}

// NewNATSPublisher creates a NATS publisher
func NewNATSPublisher(client *clients.NATSClient) *NATSPublisher {
	return &NATSPublisher{client: client}
}

// Publish implements Publisher
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	if err := p.client.Publish(p.client.Subject(string(event.Type)), event); err != nil {
		return err
	}
	metrics.NATSMessagesPublished.WithLabelValues(string(event.Type)).Inc()
	return nil
}

// TransferNotification is what an external chain scanner publishes for an
// ERC721 Transfer of the ticket contract
type TransferNotification struct {
	ContractAddress string `json:"contract_address"`
	TokenID         uint64 `json:"token_id"`
	From            string `json:"from"`
	To              string `json:"to"`
	TxHash          string `json:"tx_hash"`
	BlockNumber     uint64 `json:"block_number"`
}

// SubscribeToChainTransfers delivers scanner Transfer notifications published on
// <prefix>.chain.transfer to handler
func SubscribeToChainTransfers(client *clients.NATSClient, handler func(TransferNotification)) (*nats.Subscription, error) {
	return client.Subscribe(client.Subject("chain.transfer"), func(msg *nats.Msg) {
		var n TransferNotification
		if err := json.Unmarshal(msg.Data, &n); err != nil {
			log.Printf("❌ [NATS] Invalid transfer notification on %s: %v", msg.Subject, err)
			return
		}
		log.Printf("📨 [NATS] Transfer notification: token %d %s -> %s", n.TokenID, n.From, n.To)
		handler(n)
	})
}
