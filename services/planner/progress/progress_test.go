// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_NotifyStampsThreadID(t *testing.T) {
	rec := &Recorder{}
	ch := NewChannel("thread-1", rec)

	require.NoError(t, ch.Notify(context.Background(), "hello"))
	require.NoError(t, ch.Complete(context.Background()))

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, Event{Type: EventProgress, Text: "hello", ThreadID: "thread-1"}, events[0])
	assert.Equal(t, CompletionMessage, events[1].Text)
	assert.Equal(t, EventComplete, events[1].Type)
}

func TestChannel_ClosedNeverTouchesSink(t *testing.T) {
	calls := 0
	ch := NewChannel("t", SinkFunc(func(ctx context.Context, ev Event) error {
		calls++
		return nil
	}))
	ch.Close()
	ch.Close()

	assert.ErrorIs(t, ch.Notify(context.Background(), "late"), ErrClosed)
	_, err := ch.Ask(context.Background(), "pick one")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, ch.Deliver("1"), ErrClosed)
	assert.Equal(t, 0, calls)
	assert.True(t, ch.Closed())
}

func TestChannel_AskReceivesDeliveredReply(t *testing.T) {
	rec := &Recorder{}
	ch := NewChannel("t", rec)

	go func() {
		for len(rec.Texts(EventPrompt)) == 0 {
			time.Sleep(time.Millisecond)
		}
		_ = ch.Deliver("2")
	}()

	reply, err := ch.Ask(context.Background(), "choose")
	require.NoError(t, err)
	assert.Equal(t, "2", reply)
	assert.Equal(t, []string{"choose"}, rec.Texts(EventPrompt))
}

func TestChannel_AskUnblocksOnClose(t *testing.T) {
	ch := NewChannel("t", &Recorder{})
	errCh := make(chan error, 1)
	go func() {
		_, err := ch.Ask(context.Background(), "choose")
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	ch.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Ask did not return after Close")
	}
}

func TestChannel_AskHonorsContext(t *testing.T) {
	ch := NewChannel("t", &Recorder{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := ch.Ask(ctx, "choose")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannel_DeliverRejectsSecondPendingReply(t *testing.T) {
	ch := NewChannel("t", &Recorder{})
	require.NoError(t, ch.Deliver("1"))
	assert.ErrorIs(t, ch.Deliver("2"), ErrReplyPending)
}

func TestChannel_SinkErrorPropagates(t *testing.T) {
	sentinel := errors.New("broken pipe")
	ch := NewChannel("t", SinkFunc(func(ctx context.Context, ev Event) error { return sentinel }))
	assert.ErrorIs(t, ch.Notify(context.Background(), "x"), sentinel)
}

func TestScripted(t *testing.T) {
	s := NewScripted("a")
	reply, err := s.Ask(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "a", reply)

	_, err = s.Ask(context.Background(), "p2")
	assert.ErrorIs(t, err, ErrNoReply)
	assert.Equal(t, []string{"p1", "p2"}, s.Prompts)
}
