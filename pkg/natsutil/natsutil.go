// Package natsutil provides typed NATS publish/subscribe helpers with
// OpenTelemetry trace propagation.
package natsutil

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Message is a decoded message together with its headers.
type Message[T any] struct {
	Subject string
	Header  nats.Header
	Data    T
	// Raw is the undecoded payload, kept for republishing.
	Raw []byte
}

// Publish serializes v as JSON and publishes it to subject.
// Trace context from ctx is injected into the message headers.
func Publish[T any](ctx context.Context, nc *nats.Conn, subject string, v T) error {
	return PublishWithHeader(ctx, nc, subject, v, nil)
}

// PublishWithHeader is Publish with extra headers.
func PublishWithHeader[T any](ctx context.Context, nc *nats.Conn, subject string, v T, header nats.Header) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}
	return publishRaw(ctx, nc, subject, data, header)
}

func publishRaw(ctx context.Context, nc *nats.Conn, subject string, data []byte, header nats.Header) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, vs := range header {
		for _, v := range vs {
			msg.Header.Add(k, v)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return nc.PublishMsg(msg)
}

// Republish sends an already-encoded payload, typically a message being
// retried, with the given headers.
func Republish(ctx context.Context, nc *nats.Conn, subject string, data []byte, header nats.Header) error {
	return publishRaw(ctx, nc, subject, data, header)
}

// Subscribe registers a handler that decodes JSON messages of type T. When
// queue is non-empty the subscription joins that queue group. Messages that
// fail to decode are passed to onMalformed, if set, and otherwise dropped.
func Subscribe[T any](nc *nats.Conn, subject, queue string, handler func(context.Context, Message[T]), onMalformed func(subject string, err error)) (*nats.Subscription, error) {
	cb := func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			if onMalformed != nil {
				onMalformed(msg.Subject, err)
			}
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
		handler(ctx, Message[T]{Subject: msg.Subject, Header: msg.Header, Data: v, Raw: msg.Data})
	}
	if queue != "" {
		return nc.QueueSubscribe(subject, queue, cb)
	}
	return nc.Subscribe(subject, cb)
}
