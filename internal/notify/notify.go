// Package notify is the Notification Emitter (C4): fires named
// state-change and progress events to SSE subscribers. Adapted from the
// teacher's internal/sse broadcaster, generalized from a single
// "job update" event type to the pipeline's two named events.
package notify

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"meetcorrect/pkg/logger"
)

// Event is a single named notification for one meeting.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Subscription is one client's subscription to a specific meeting's events.
type Subscription struct {
	MeetingID string
	Channel   chan Event
}

// message is an internal broadcast request.
type message struct {
	MeetingID string
	Event     Event
}

// StateChangedPayload is the payload of a meetingStateChanged event.
type StateChangedPayload struct {
	MeetingID string `json:"meetingId"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// TranscriptionProgressPayload is the payload of a
// meetingTranscriptionProgress event.
type TranscriptionProgressPayload struct {
	MeetingID       string  `json:"meetingId"`
	ClientID        string  `json:"clientId"`
	Percent         float64 `json:"percent"`
	SegmentsDone    int     `json:"segmentsDone"`
	ElapsedSeconds  float64 `json:"elapsedSeconds"`
	LastSegmentText *string `json:"lastSegmentText,omitempty"`
}

const (
	EventMeetingStateChanged          = "meetingStateChanged"
	EventMeetingTranscriptionProgress = "meetingTranscriptionProgress"
)

// Emitter manages SSE subscriptions and broadcasts, one registry per
// process — a single Emitter serves every meeting's event stream.
type Emitter struct {
	subscribers map[string]map[chan Event]bool // meetingID -> set of client channels
	register    chan Subscription
	unregister  chan Subscription
	broadcast   chan message
	shutdown    chan struct{}
	mutex       sync.RWMutex
}

// New builds an Emitter and starts its dispatch loop.
func New() *Emitter {
	e := &Emitter{
		subscribers: make(map[string]map[chan Event]bool),
		register:    make(chan Subscription),
		unregister:  make(chan Subscription),
		broadcast:   make(chan message),
		shutdown:    make(chan struct{}),
	}
	go e.listen()
	return e
}

func (e *Emitter) listen() {
	for {
		select {
		case sub := <-e.register:
			e.mutex.Lock()
			if e.subscribers[sub.MeetingID] == nil {
				e.subscribers[sub.MeetingID] = make(map[chan Event]bool)
			}
			e.subscribers[sub.MeetingID][sub.Channel] = true
			e.mutex.Unlock()
			logger.Debug("New SSE client registered", "meeting_id", sub.MeetingID)

		case sub := <-e.unregister:
			e.mutex.Lock()
			if clients, ok := e.subscribers[sub.MeetingID]; ok {
				delete(clients, sub.Channel)
				close(sub.Channel)
				if len(clients) == 0 {
					delete(e.subscribers, sub.MeetingID)
				}
			}
			e.mutex.Unlock()
			logger.Debug("SSE client unregistered", "meeting_id", sub.MeetingID)

		case msg := <-e.broadcast:
			e.mutex.RLock()
			if clients, ok := e.subscribers[msg.MeetingID]; ok {
				for c := range clients {
					select {
					case c <- msg.Event:
					default:
						logger.Warn("Skipping slow SSE client", "meeting_id", msg.MeetingID)
					}
				}
			}
			e.mutex.RUnlock()

		case <-e.shutdown:
			e.mutex.Lock()
			logger.Info("Notification emitter shutting down")
			for _, clients := range e.subscribers {
				for c := range clients {
					close(c)
				}
			}
			e.subscribers = nil
			e.mutex.Unlock()
			return
		}
	}
}

// Shutdown stops the emitter and closes every client connection.
func (e *Emitter) Shutdown() {
	close(e.shutdown)
}

// ServeHTTP handles one SSE connection for a meeting's event stream.
func (e *Emitter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	meetingID := r.URL.Query().Get("meeting_id")
	if meetingID == "" {
		http.Error(w, "meeting_id is required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	messageChan := make(chan Event)
	subscription := Subscription{MeetingID: meetingID, Channel: messageChan}

	e.register <- subscription

	defer func() {
		select {
		case e.unregister <- subscription:
		case <-e.shutdown:
			logger.Debug("Skipping SSE client deregistration (shutdown)")
		}
	}()

	fmt.Fprintf(w, "data: {\"type\":\"connected\", \"meetingId\":\"%s\"}\n\n", meetingID)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-messageChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Error("Failed to marshal SSE message", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-time.After(30 * time.Second):
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// MeetingStateChanged emits a meetingStateChanged event.
func (e *Emitter) MeetingStateChanged(meetingID, from, to string) {
	e.broadcast <- message{
		MeetingID: meetingID,
		Event: Event{
			Type: EventMeetingStateChanged,
			Payload: StateChangedPayload{
				MeetingID: meetingID,
				From:      from,
				To:        to,
			},
		},
	}
}

// MeetingTranscriptionProgress emits a meetingTranscriptionProgress event.
func (e *Emitter) MeetingTranscriptionProgress(p TranscriptionProgressPayload) {
	e.broadcast <- message{
		MeetingID: p.MeetingID,
		Event: Event{
			Type:    EventMeetingTranscriptionProgress,
			Payload: p,
		},
	}
}
