// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package progress carries planner output to the connected client.
//
// # Description
//
// A Channel relays progress text and interactive prompts to a Sink (a
// websocket connection, a terminal, a test recorder) and accepts replies
// through Deliver. Once closed, a Channel never touches its sink again,
// so a disconnected client cannot be written to by a run that is still
// unwinding.
//
// # Thread Safety
//
// Channel is safe for concurrent use. Sends are serialized so events
// reach the sink in the order they were emitted.
package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// CompletionMessage is sent exactly once when a run finishes successfully.
const CompletionMessage = "✔️ Itinerary planning completed."

// EventType classifies an Event.
type EventType string

const (
	EventSession  EventType = "session"
	EventProgress EventType = "progress"
	EventPrompt   EventType = "prompt"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one message to the client.
type Event struct {
	Type     EventType `json:"type"`
	Text     string    `json:"text,omitempty"`
	ThreadID string    `json:"thread_id,omitempty"`
	Data     any       `json:"data,omitempty"`
}

// Sink delivers events to a client.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Send(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Notifier receives progress text.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Interactive asks the client a question and waits for one reply.
type Interactive interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("progress channel closed")

	// ErrReplyPending is returned by Deliver when an earlier reply has
	// not been consumed yet.
	ErrReplyPending = errors.New("a reply is already pending")

	// ErrNoReply is returned by Scripted when its replies are exhausted.
	ErrNoReply = errors.New("no scripted reply available")
)

// Channel relays events for one planning session.
type Channel struct {
	mu       sync.Mutex
	sink     Sink
	threadID string
	closed   bool

	replies chan string
	done    chan struct{}
}

var (
	_ Notifier    = (*Channel)(nil)
	_ Interactive = (*Channel)(nil)
)

// NewChannel returns an open Channel over sink.
func NewChannel(threadID string, sink Sink) *Channel {
	return &Channel{
		sink:     sink,
		threadID: threadID,
		replies:  make(chan string, 1),
		done:     make(chan struct{}),
	}
}

// SetThreadID updates the thread id stamped on outgoing events.
func (c *Channel) SetThreadID(id string) {
	c.mu.Lock()
	c.threadID = id
	c.mu.Unlock()
}

// ThreadID returns the current thread id.
func (c *Channel) ThreadID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threadID
}

// Emit sends ev, stamping the thread id when absent.
func (c *Channel) Emit(ctx context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if ev.ThreadID == "" {
		ev.ThreadID = c.threadID
	}
	return c.sink.Send(ctx, ev)
}

// Notify sends a progress event.
func (c *Channel) Notify(ctx context.Context, text string) error {
	return c.Emit(ctx, Event{Type: EventProgress, Text: text})
}

// Complete sends the completion event.
func (c *Channel) Complete(ctx context.Context) error {
	return c.Emit(ctx, Event{Type: EventComplete, Text: CompletionMessage})
}

// Fail sends an error event.
func (c *Channel) Fail(ctx context.Context, text string) error {
	return c.Emit(ctx, Event{Type: EventError, Text: text})
}

// Ask sends a prompt event and blocks until Deliver provides a reply,
// ctx is done, or the channel is closed.
func (c *Channel) Ask(ctx context.Context, prompt string) (string, error) {
	if err := c.Emit(ctx, Event{Type: EventPrompt, Text: prompt}); err != nil {
		return "", err
	}
	select {
	case reply := <-c.replies:
		return reply, nil
	case <-c.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Deliver hands a client reply to a pending or future Ask.
func (c *Channel) Deliver(reply string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	select {
	case c.replies <- reply:
		return nil
	default:
		return ErrReplyPending
	}
}

// Close disconnects the sink. Pending Ask calls return ErrClosed.
// Close is idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// =============================================================================
// Test and CLI helpers
// =============================================================================

// Recorder is a Sink that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Send records ev.
func (r *Recorder) Send(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Texts returns the text of every recorded event of type t.
func (r *Recorder) Texts(t EventType) []string {
	var out []string
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev.Text)
		}
	}
	return out
}

// Scripted answers prompts from a fixed list of replies and records
// everything it is told.
type Scripted struct {
	mu       sync.Mutex
	replies  []string
	Notes    []string
	Prompts  []string
	AskError error
}

// NewScripted returns a Scripted with the given replies.
func NewScripted(replies ...string) *Scripted {
	return &Scripted{replies: replies}
}

// Notify records text.
func (s *Scripted) Notify(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Notes = append(s.Notes, text)
	return nil
}

// Ask records prompt and returns the next reply.
func (s *Scripted) Ask(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Prompts = append(s.Prompts, prompt)
	if s.AskError != nil {
		return "", s.AskError
	}
	if len(s.replies) == 0 {
		return "", ErrNoReply
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

// Discard is a Notifier that drops everything.
type Discard struct{}

func (Discard) Notify(ctx context.Context, text string) error { return nil }

// String renders an event for logs.
func (e Event) String() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Text)
}
