package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/LoomClaw/LoomClaw/internal/bus"
	"github.com/LoomClaw/LoomClaw/internal/config"
)

// kafkaInbound is the wire format consumed from the inbound topic.
type kafkaInbound struct {
	UserID   string            `json:"user_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// kafkaOutbound is the wire format produced on the outbound topic.
type kafkaOutbound struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	UserID  string    `json:"user_id"`
	Content string    `json:"content"`
}

// KafkaChannel bridges a pair of Kafka topics onto the bus. Records on
// the inbound topic become user messages; agent responses addressed to
// "kafka" are produced on the outbound topic keyed by user id.
type KafkaChannel struct {
	BaseChannel
	config config.KafkaConfig

	reader *kafka.Reader
	writer *kafka.Writer
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewKafkaChannel(cfg config.KafkaConfig, b *bus.Bus) *KafkaChannel {
	return &KafkaChannel{
		BaseChannel: BaseChannel{Bus: b},
		config:      cfg,
	}
}

func (c *KafkaChannel) Name() string { return "kafka" }

func (c *KafkaChannel) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	if strings.TrimSpace(c.config.Brokers) == "" || strings.TrimSpace(c.config.InboundTopic) == "" {
		return fmt.Errorf("kafka channel requires brokers and inboundTopic")
	}
	brokers := strings.Split(c.config.Brokers, ",")

	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    c.config.InboundTopic,
		GroupID:  c.consumerGroup(),
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	if topic := strings.TrimSpace(c.config.OutboundTopic); topic != "" {
		c.writer = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	sub, err := c.Bus.Subscribe(bus.TopicAgentResponse)
	if err != nil {
		cancel()
		return err
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.readInbound(runCtx)
	}()
	go func() {
		defer c.wg.Done()
		defer sub.Cancel()
		c.deliverOutbound(runCtx, sub)
	}()
	return nil
}

func (c *KafkaChannel) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if c.reader != nil {
		c.reader.Close()
	}
	if c.writer != nil {
		c.writer.Close()
	}
	return nil
}

func (c *KafkaChannel) readInbound(ctx context.Context) {
	for {
		rec, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("Kafka read error", "topic", c.config.InboundTopic, "error", err)
			continue
		}
		msg, err := decodeInbound(rec.Key, rec.Value)
		if err != nil {
			slog.Warn("Kafka inbound record skipped", "offset", rec.Offset, "error", err)
			continue
		}
		if err := c.Bus.Publish(ctx, msg); err != nil {
			slog.Error("Kafka inbound publish failed", "error", err)
			return
		}
	}
}

func (c *KafkaChannel) deliverOutbound(ctx context.Context, sub *bus.Subscription) {
	for {
		env, err := sub.Recv(ctx)
		if err != nil {
			return
		}
		resp, ok := env.(*bus.AgentResponse)
		if !ok || resp.Platform != c.Name() || strings.TrimSpace(resp.Content) == "" {
			continue
		}
		if err := c.Send(ctx, resp); err != nil {
			slog.Error("Kafka send failed", "user", resp.UserID, "error", err)
		}
	}
}

func (c *KafkaChannel) Send(ctx context.Context, msg *bus.AgentResponse) error {
	if c.writer == nil {
		return nil
	}
	value, err := json.Marshal(kafkaOutbound{
		ID:      msg.ID,
		Time:    msg.Time,
		UserID:  msg.UserID,
		Content: msg.Content,
	})
	if err != nil {
		return err
	}
	return c.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.UserID),
		Value: value,
		Time:  msg.Time,
	})
}

func (c *KafkaChannel) consumerGroup() string {
	if g := strings.TrimSpace(c.config.ConsumerGroup); g != "" {
		return g
	}
	return "loomclaw"
}

// decodeInbound parses an inbound record. The user id falls back to the
// record key when the payload omits it.
func decodeInbound(key, value []byte) (*bus.UserMessage, error) {
	var in kafkaInbound
	if err := json.Unmarshal(value, &in); err != nil {
		return nil, fmt.Errorf("invalid inbound payload: %w", err)
	}
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		userID = strings.TrimSpace(string(key))
	}
	if userID == "" {
		return nil, fmt.Errorf("inbound record has no user id")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("inbound record has no content")
	}
	msg := bus.NewUserMessage("kafka", userID, in.Content)
	msg.Metadata = in.Metadata
	return msg, nil
}
