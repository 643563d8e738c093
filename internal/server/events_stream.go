package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tierfolio/internal/events"
)

const (
	streamBufferSize  = 100
	heartbeatInterval = 30 * time.Second
	logPollInterval   = 2 * time.Second
)

// EventsStreamHandler handles Server-Sent Events (SSE) streaming for all system events.
type EventsStreamHandler struct {
	eventBus    *events.Bus
	dataDir     string
	log         zerolog.Logger
	logWatchers map[string]*logWatcher
	mu          sync.Mutex
}

// logWatcher polls a log file and fans change notifications out to every
// connection watching it
type logWatcher struct {
	filePath    string
	lastModTime time.Time
	lastSize    int64
	listeners   map[chan *events.Event]struct{}
	stop        chan struct{}
}

// NewEventsStreamHandler creates a new events stream handler.
func NewEventsStreamHandler(eventBus *events.Bus, dataDir string, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus:    eventBus,
		dataDir:     dataDir,
		log:         log.With().Str("component", "events_stream").Logger(),
		logWatchers: make(map[string]*logWatcher),
	}
}

// ServeHTTP handles GET /api/events/stream?types=A,B&log_file=name.log
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	typesFilter := r.URL.Query().Get("types")
	logFile := r.URL.Query().Get("log_file")

	h.log.Info().
		Str("types_filter", typesFilter).
		Str("log_file", logFile).
		Msg("Client connected to event stream")

	eventChan := make(chan *events.Event, streamBufferSize)
	subs := subscribe(h.eventBus, parseTypesFilter(typesFilter), eventChan, h.log)
	defer unsubscribe(h.eventBus, subs)

	if logFile != "" {
		if h.startLogWatcher(logFile, eventChan) {
			defer h.stopLogWatcher(logFile, eventChan)
		}
	}

	fmt.Fprintf(w, "data: %s\n\n", h.encodeEvent(map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	}))
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case event := <-eventChan:
			fmt.Fprintf(w, "data: %s\n\n", h.encodeEvent(eventPayload(event)))
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprintf(w, "data: %s\n\n", h.encodeEvent(map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			}))
			flusher.Flush()
		}
	}
}

// encodeEvent encodes an event map to JSON string.
func (h *EventsStreamHandler) encodeEvent(event map[string]interface{}) string {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		return `{"error":"failed to encode event"}`
	}
	return string(data)
}

// startLogWatcher registers eventChan for change notifications on logFile.
// Returns false when the file name is invalid or the file does not exist.
func (h *EventsStreamHandler) startLogWatcher(logFile string, eventChan chan *events.Event) bool {
	logPath, ok := resolveLogFile(filepath.Join(h.dataDir, "logs"), logFile)
	if !ok {
		h.log.Warn().Str("log_file", logFile).Msg("Invalid log file name")
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if watcher, exists := h.logWatchers[logFile]; exists {
		watcher.listeners[eventChan] = struct{}{}
		return true
	}

	info, err := os.Stat(logPath)
	if err != nil {
		h.log.Warn().Err(err).Str("log_file", logFile).Msg("Log file not found")
		return false
	}

	watcher := &logWatcher{
		filePath:    logPath,
		lastModTime: info.ModTime(),
		lastSize:    info.Size(),
		listeners:   map[chan *events.Event]struct{}{eventChan: {}},
		stop:        make(chan struct{}),
	}
	h.logWatchers[logFile] = watcher

	go h.watch(logFile, watcher)

	h.log.Info().Str("log_file", logFile).Msg("Started log file watcher")
	return true
}

func (h *EventsStreamHandler) watch(logFile string, watcher *logWatcher) {
	ticker := time.NewTicker(logPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-watcher.stop:
			return
		case <-ticker.C:
			info, err := os.Stat(watcher.filePath)
			if err != nil {
				// rotated or removed; keep polling
				continue
			}
			if !info.ModTime().After(watcher.lastModTime) && info.Size() == watcher.lastSize {
				continue
			}
			watcher.lastModTime = info.ModTime()
			watcher.lastSize = info.Size()

			event := &events.Event{
				Type:      events.LogFileChanged,
				Module:    "log_watcher",
				Timestamp: time.Now(),
				Data:      map[string]interface{}{"log_file": logFile},
			}

			h.mu.Lock()
			for listener := range watcher.listeners {
				select {
				case listener <- event:
				default:
				}
			}
			h.mu.Unlock()
		}
	}
}

// stopLogWatcher removes eventChan from logFile's listeners and stops the
// watcher once nobody is listening.
func (h *EventsStreamHandler) stopLogWatcher(logFile string, eventChan chan *events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	watcher, exists := h.logWatchers[logFile]
	if !exists {
		return
	}

	delete(watcher.listeners, eventChan)
	if len(watcher.listeners) > 0 {
		return
	}

	close(watcher.stop)
	delete(h.logWatchers, logFile)

	h.log.Info().Str("log_file", logFile).Msg("Stopped log file watcher")
}

// parseTypesFilter parses a comma-separated event type list. Nil means all types.
func parseTypesFilter(filter string) map[events.EventType]bool {
	if strings.TrimSpace(filter) == "" {
		return nil
	}
	allowed := make(map[events.EventType]bool)
	for _, t := range strings.Split(filter, ",") {
		if t = strings.TrimSpace(t); t != "" {
			allowed[events.EventType(strings.ToUpper(t))] = true
		}
	}
	return allowed
}

// subscribe forwards bus events of the allowed types (all when nil) into
// eventChan, dropping events when the channel is full
func subscribe(bus *events.Bus, allowed map[events.EventType]bool, eventChan chan *events.Event, log zerolog.Logger) []events.Subscription {
	handler := func(event *events.Event) {
		select {
		case eventChan <- event:
		default:
			log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event channel full, dropping event")
		}
	}

	var subs []events.Subscription
	for _, eventType := range events.AllEventTypes {
		if allowed != nil && !allowed[eventType] {
			continue
		}
		subs = append(subs, bus.Subscribe(eventType, handler))
	}
	return subs
}

func unsubscribe(bus *events.Bus, subs []events.Subscription) {
	for _, sub := range subs {
		bus.Unsubscribe(sub)
	}
}

// eventPayload is the wire form of an event on both streams
func eventPayload(event *events.Event) map[string]interface{} {
	return map[string]interface{}{
		"type":      string(event.Type),
		"module":    event.Module,
		"timestamp": event.Timestamp.Format(time.RFC3339),
		"data":      event.Data,
	}
}
