/*
Package events provides an in-process publish/subscribe broker for netpanel
state changes.

Services publish through the Publisher interface after a mutation has been
persisted: snapshot creation, rename and deletion, layout saves, intnet
applications and preset reloads. The Broker fans events out to buffered
subscriber channels from a single distribution goroutine.

Publish never blocks the request path. If the broker queue is full the event
is dropped with a warning, and a subscriber whose buffer is full misses the
event. Events are a notification stream, not a durable log.

RunAuditLog is the built-in subscriber: it writes one structured log line per
event under the "audit" component, which gives operators a record of who
changed what.

	broker := events.NewBroker()
	g.Go(func() error { return broker.Run(ctx) })
	g.Go(func() error { return events.RunAuditLog(ctx, broker) })

	svc := snapshot.NewService(repo, broker)
*/
package events
