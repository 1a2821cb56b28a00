package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"backend-tanquecheio/internal/recommend"

	"github.com/nats-io/nats.go"
)

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

// publisher is the part of *nats.Conn the dispatcher uses.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSDispatcher publishes each notification on <prefix>.<user>. A successful
// publish counts as delivered: the push workers behind the subject own the
// last hop to the device.
type NATSDispatcher struct {
	nc      publisher
	conn    *nats.Conn
	prefix  string
	metrics PublisherMetrics
}

func ConnectNATS(url, prefix string, m PublisherMetrics) (*NATSDispatcher, error) {
	nc, err := nats.Connect(url,
		nats.Name("tanquecheio-api"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	d := NewNATSDispatcher(nc, prefix, m)
	d.conn = nc
	return d, nil
}

func NewNATSDispatcher(nc publisher, prefix string, m PublisherMetrics) *NATSDispatcher {
	return &NATSDispatcher{nc: nc, prefix: strings.Trim(prefix, "."), metrics: m}
}

func (d *NATSDispatcher) Close() {
	if d.conn != nil {
		_ = d.conn.Drain()
	}
}

func (d *NATSDispatcher) Send(ctx context.Context, userID string, result recommend.Result) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b, err := json.Marshal(NewMessage(userID, result))
	if err != nil {
		return false, err
	}

	subject := d.subject(userID)
	start := time.Now()
	err = d.nc.Publish(subject, b)
	if d.metrics != nil {
		d.metrics.PublishObserve(time.Since(start))
		if err != nil {
			d.metrics.NATSPublishErrInc()
		} else {
			d.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return false, fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return true, nil
}

func (d *NATSDispatcher) subject(userID string) string {
	if d.prefix == "" {
		return subjectToken(userID)
	}
	return d.prefix + "." + subjectToken(userID)
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS tokens cannot contain spaces, wildcards or dots
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
