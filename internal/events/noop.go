package events

import "context"

// NoopPublisher drops every event. It is used when nats.url is empty.
type NoopPublisher struct{}

// Publish discards the event
func (*NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (*NoopPublisher) Close() error { return nil }
