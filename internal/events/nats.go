package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// NATSConfig configures the NATS publisher.
type NATSConfig struct {
	URL            string        `yaml:"url" mapstructure:"url"`
	SubjectPrefix  string        `yaml:"subject_prefix" mapstructure:"subject_prefix"`
	MaxReconnects  int           `yaml:"max_reconnects" mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait" mapstructure:"reconnect_wait"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
}

// conn is the subset of *nats.Conn used by the publisher.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes events as JSON on "<prefix>.<type>" subjects.
type NATSPublisher struct {
	nc     conn
	prefix string
}

// NewNATS connects to cfg.URL.
func NewNATS(cfg NATSConfig) (*NATSPublisher, error) {
	log := zap.L().With(zap.String("component", "events.nats"))
	opts := []nats.Option{
		nats.Name("placepulse"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info("nats connection closed")
		}),
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectWait))
	}
	if cfg.ConnectTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnectTimeout))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, eris.Wrapf(err, "events: connect to nats %s", cfg.URL)
	}
	return newNATSPublisher(nc, cfg.SubjectPrefix), nil
}

func newNATSPublisher(nc conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "placepulse"
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(t Type) string {
	return p.prefix + "." + string(t)
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "events: marshal")
	}
	if err := p.nc.Publish(p.Subject(e.Type), data); err != nil {
		return eris.Wrapf(err, "events: publish %s", e.Type)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return eris.Wrap(p.nc.Drain(), "events: drain")
}
