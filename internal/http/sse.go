package http

import (
	"fmt"
	"net/http"
)

// prepareSSE sets event-stream headers and returns the flusher, or nil when w cannot flush.
func prepareSSE(w http.ResponseWriter) http.Flusher {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // nginx: disable buffering
	flusher, _ := w.(http.Flusher)
	return flusher
}

// writeEvent writes one named event and flushes it.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, event, data string) error {
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}
