// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/wayfarer/services/orchestrator/datatypes"
	"github.com/AleutianAI/wayfarer/services/planner/progress"
	"github.com/AleutianAI/wayfarer/services/planner/state"
	"github.com/AleutianAI/wayfarer/services/planner/workflow"
)

const (
	writeWait = 10 * time.Second
	closeWait = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  maxPreferencesBytes,
	WriteBufferSize: maxPreferencesBytes,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// wsSink writes progress events as JSON text frames.
type wsSink struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (s *wsSink) Send(_ context.Context, ev progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return sendJSON(s.ws, ev)
}

func (s *wsSink) close(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = s.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// HandlePlanWebSocket runs one planning session per connection.
//
// # Description
//
// The first frame starts the session: either travel preferences (with an
// optional output_format and thread_id) or {"action":"resume","thread_id":
// "..."}. Invalid preferences get a single error event carrying the field
// violations and the connection is closed. While the run is active every
// further frame is a reply to the pending prompt, as plain text or
// {"reply":"..."}. The server closes the connection after the terminal
// event.
//
// # Thread Safety
//
// Each connection has a reader goroutine for replies and the handler
// goroutine driving the run. A read failure (client gone) cancels the run
// and closes the progress channel, so nothing is written afterwards.
func HandlePlanWebSocket(planner Planner, metrics SessionMetrics) gin.HandlerFunc {
	if metrics == nil {
		metrics = noopSessionMetrics{}
	}

	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()
		ws.SetReadLimit(maxPreferencesBytes)
		sink := &wsSink{ws: ws}

		_, first, err := ws.ReadMessage()
		if err != nil {
			slog.Info("Websocket client disconnected before starting", "error", err.Error())
			return
		}

		frame, prefs, format, err := decodeStart(first)
		if err != nil {
			ev := progress.Event{Type: progress.EventError, Text: err.Error()}
			var verr *state.ValidationError
			if errors.As(err, &verr) {
				ev.Data = verr.Violations
			}
			_ = sink.Send(c.Request.Context(), ev)
			sink.close("invalid request")
			return
		}

		action := datatypes.ActionPlan
		if frame.IsResume() {
			action = datatypes.ActionResume
		}
		sessionClosed := metrics.SessionOpened(action)
		defer sessionClosed()

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		ch := progress.NewChannel(frame.ThreadID, sink)
		sess := workflow.Session{Channel: ch, Interactive: frame.WantsPrompts()}

		readerDone := make(chan struct{})
		go func() {
			defer close(readerDone)
			readReplies(ws, ch, cancel)
		}()

		if frame.IsResume() {
			_, err = planner.Resume(ctx, frame.ThreadID, sess)
		} else {
			_, err = planner.Plan(ctx, workflow.Request{
				ThreadID:    frame.ThreadID,
				Preferences: prefs,
				Format:      format,
			}, sess)
		}
		if err != nil {
			slog.Info("planning session ended with error",
				"action", action, "thread_id", ch.ThreadID(), "error", err)
		} else {
			slog.Info("planning session completed", "action", action, "thread_id", ch.ThreadID())
		}

		closed := ch.Closed()
		ch.Close()
		if !closed {
			sink.close("planning finished")
		}
		select {
		case <-readerDone:
		case <-time.After(closeWait):
		}
	}
}

// readReplies forwards client frames to the channel until the connection
// fails or closes, then cancels the run.
func readReplies(ws *websocket.Conn, ch *progress.Channel, cancel context.CancelFunc) {
	defer func() {
		ch.Close()
		cancel()
	}()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Info("Websocket client disconnected", "error", err.Error())
			}
			return
		}
		reply := datatypes.ParseReply(data)
		if reply == "" {
			continue
		}
		if err := ch.Deliver(reply); err != nil {
			if errors.Is(err, progress.ErrClosed) {
				return
			}
			slog.Warn("Dropping client reply", "thread_id", ch.ThreadID(), "error", err)
		}
	}
}
