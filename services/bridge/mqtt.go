package bridge

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	qosAtLeastOnce byte = 1
	connectTimeout      = 5 * time.Second
	quiesceMs      uint = 250
)

// mqttLink is a Link over a paho client. Reconnects are left to the
// supervisor, so the client's own auto-reconnect is off.
type mqttLink struct {
	client mqtt.Client
	lost   chan error
}

// DialMQTT connects to cfg.Broker and registers a retained "false" on
// <prefix>/online as the last will.
func DialMQTT(ctx context.Context, cfg Config) (Link, error) {
	l := &mqttLink{lost: make(chan error, 1)}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(connectTimeout).
		SetOrderMatters(false).
		SetWill(cfg.onlineTopic(), "false", qosAtLeastOnce, true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			select {
			case l.lost <- err:
			default:
			}
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	l.client = mqtt.NewClient(opts)
	if err := wait(ctx, l.client.Connect()); err != nil {
		l.client.Disconnect(0)
		return nil, err
	}
	return l, nil
}

func (l *mqttLink) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	return wait(ctx, l.client.Publish(topic, qosAtLeastOnce, retained, payload))
}

func (l *mqttLink) Subscribe(ctx context.Context, filter string, fn func(topic string, payload []byte)) error {
	return wait(ctx, l.client.Subscribe(filter, qosAtLeastOnce, func(_ mqtt.Client, m mqtt.Message) {
		fn(m.Topic(), m.Payload())
	}))
}

func (l *mqttLink) Lost() <-chan error { return l.lost }

func (l *mqttLink) Close() { l.client.Disconnect(quiesceMs) }

func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
