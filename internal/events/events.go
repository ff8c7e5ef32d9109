package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Event subjects
const (
	SubjectOrderAttributed = "attribution.order.attributed"
	SubjectLeadConverted   = "attribution.lead.converted"
	SubjectUploadCompleted = "attribution.upload.completed"
	SubjectUploadFailed    = "attribution.upload.failed"

	// Inbound: other services can request an immediate coupon/order sync
	SubjectSyncRequested = "attribution.sync.requested"
)

// OrderAttributedEvent fires once per order reaching a final attribution,
// on both first sight and re-attribution of an existing order.
type OrderAttributedEvent struct {
	OrderID        uuid.UUID  `json:"order_id"`
	ShopifyOrderID string     `json:"shopify_order_id"`
	PlatformSource string     `json:"platform_source"`
	CampaignID     *uuid.UUID `json:"campaign_id,omitempty"`
	CouponCode     string     `json:"coupon_code,omitempty"`
	TotalAmount    float64    `json:"total_amount"`
	Timestamp      time.Time  `json:"timestamp"`
}

// LeadConvertedEvent fires when an order converts a pending lead.
type LeadConvertedEvent struct {
	LeadID     uuid.UUID `json:"lead_id"`
	CampaignID uuid.UUID `json:"campaign_id"`
	OrderID    uuid.UUID `json:"order_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// UploadCompletedEvent fires when a CSV batch reaches SUCCESS.
type UploadCompletedEvent struct {
	UploadID  uuid.UUID `json:"upload_id"`
	FileName  string    `json:"file_name"`
	TotalRows int       `json:"total_rows"`
	Timestamp time.Time `json:"timestamp"`
}

// UploadFailedEvent fires when a CSV batch reaches FAILED.
type UploadFailedEvent struct {
	UploadID  uuid.UUID `json:"upload_id"`
	FileName  string    `json:"file_name"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncRequestedEvent asks the service to run an immediate sync pass.
type SyncRequestedEvent struct {
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher handles publishing events to NATS
type Publisher struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// NewPublisher creates a new NATS publisher. A nil connection disables
// publishing, which keeps tests and local runs broker-free.
func NewPublisher(nc *nats.Conn, logger *zap.Logger) *Publisher {
	return &Publisher{nc: nc, logger: logger}
}

func (p *Publisher) publish(subject string, event interface{}) error {
	if p == nil || p.nc == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
		return err
	}
	return nil
}

// PublishOrderAttributed publishes an order attributed event
func (p *Publisher) PublishOrderAttributed(event *OrderAttributedEvent) error {
	event.Timestamp = time.Now()
	return p.publish(SubjectOrderAttributed, event)
}

// PublishLeadConverted publishes a lead converted event
func (p *Publisher) PublishLeadConverted(event *LeadConvertedEvent) error {
	event.Timestamp = time.Now()
	return p.publish(SubjectLeadConverted, event)
}

// PublishUploadCompleted publishes an upload completed event
func (p *Publisher) PublishUploadCompleted(event *UploadCompletedEvent) error {
	event.Timestamp = time.Now()
	return p.publish(SubjectUploadCompleted, event)
}

// PublishUploadFailed publishes an upload failed event
func (p *Publisher) PublishUploadFailed(event *UploadFailedEvent) error {
	event.Timestamp = time.Now()
	return p.publish(SubjectUploadFailed, event)
}

// SyncHandler is implemented by whatever runs a sync pass on demand.
type SyncHandler interface {
	HandleSyncRequested(event *SyncRequestedEvent) error
}

// Subscriber handles NATS event subscriptions
type Subscriber struct {
	nc      *nats.Conn
	logger  *zap.Logger
	handler SyncHandler
	subs    []*nats.Subscription
}

// NewSubscriber creates a new NATS subscriber
func NewSubscriber(nc *nats.Conn, handler SyncHandler, logger *zap.Logger) *Subscriber {
	return &Subscriber{
		nc:      nc,
		logger:  logger,
		handler: handler,
		subs:    make([]*nats.Subscription, 0),
	}
}

// Start subscribes to all relevant events
func (s *Subscriber) Start() error {
	sub, err := s.nc.Subscribe(SubjectSyncRequested, s.handleSyncRequested)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	s.logger.Info("Subscribed to event", zap.String("subject", SubjectSyncRequested))
	return nil
}

// Stop unsubscribes from all events
func (s *Subscriber) Stop() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.logger.Info("NATS subscriber stopped")
}

func (s *Subscriber) handleSyncRequested(msg *nats.Msg) {
	var event SyncRequestedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		s.logger.Error("Failed to unmarshal sync requested event", zap.Error(err))
		return
	}

	s.logger.Info("Received sync request", zap.String("reason", event.Reason))

	if err := s.handler.HandleSyncRequested(&event); err != nil {
		s.logger.Error("Failed to handle sync request", zap.Error(err))
	}
}
