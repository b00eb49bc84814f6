// Package events announces committed flow mutations on a RabbitMQ topic
// exchange.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Exchange is the topic exchange every flow event is published to. The
// routing key is the event type.
const Exchange = "trove.flows"

type Type string

const (
	FlowCreated     Type = "flow.created"
	FlowUpdated     Type = "flow.updated"
	FlowDeleted     Type = "flow.deleted"
	StageAdded      Type = "stage.added"
	StageRenamed    Type = "stage.renamed"
	StageDeleted    Type = "stage.deleted"
	StagesReordered Type = "stages.reordered"
	NodeCreated     Type = "node.created"
	NodesReordered  Type = "nodes.reordered"
	NodeMoved       Type = "node.moved"
	NodeUpdated     Type = "node.updated"
	NodeRemoved     Type = "node.removed"
)

type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	FlowID    string    `json:"flowId"`
	ActorID   string    `json:"actorId,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func New(typ Type, flowID, actorID string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		FlowID:    flowID,
		ActorID:   actorID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher delivers events after the mutation they describe has committed.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event. It is used when AMQP_URL is empty.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists the published event types in order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
