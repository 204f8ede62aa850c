package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/microgrid/core/events"
	"github.com/kilianp07/microgrid/core/logger"
	"github.com/kilianp07/microgrid/internal/eventbus"
)

// Config defines the connection parameters for the telemetry publisher.
type Config struct {
	Enabled     bool   `json:"enabled"`
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
}

// SetDefaults fills unset fields with usable defaults.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "microgrid"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "microgrid"
	}
}

// Client is the subset of the paho client the publisher depends on.
type Client interface {
	IsConnected() bool
	Disconnect(uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Publisher forwards simulation events to an MQTT broker as JSON telemetry.
type Publisher struct {
	cli    Client
	cfg    Config
	log    logger.Logger
	topics struct {
		trades string
		blocks string
		bans   string
	}
}

// NewPublisher connects to the broker and returns a ready publisher. The
// client id is suffixed with a random identifier so multiple runs can share
// a broker.
func NewPublisher(cfg Config, log logger.Logger) (*Publisher, error) {
	if log == nil {
		log = logger.NopLogger{}
	}
	cfg.SetDefaults()
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(fmt.Sprintf("%s-%s", cfg.ClientID, uuid.NewString()[:8])).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	return newPublisher(cli, cfg, log), nil
}

func newPublisher(cli Client, cfg Config, log logger.Logger) *Publisher {
	p := &Publisher{cli: cli, cfg: cfg, log: log}
	p.topics.trades = cfg.TopicPrefix + "/trades"
	p.topics.blocks = cfg.TopicPrefix + "/blocks"
	p.topics.bans = cfg.TopicPrefix + "/bans"
	return p
}

// Run consumes bus events until the context is canceled or the bus closes.
func (p *Publisher) Run(ctx context.Context, bus eventbus.EventBus) {
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			p.handle(ev)
		}
	}
}

func (p *Publisher) handle(ev eventbus.Event) {
	switch e := ev.(type) {
	case events.TradeExecuted:
		p.publish(p.topics.trades, e.Trade.Payload())
	case events.BlockMined:
		p.publish(p.topics.blocks, e)
	case events.ProsumerBanned:
		p.publish(p.topics.bans, e)
	}
}

func (p *Publisher) publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Errorf("mqtt: marshal %s payload: %v", topic, err)
		return
	}
	token := p.cli.Publish(topic, p.cfg.QoS, false, data)
	token.Wait()
	if err := token.Error(); err != nil {
		p.log.Warnf("mqtt: publish %s: %v", topic, err)
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
