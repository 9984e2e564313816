package api

import (
	"fmt"
	"net/http"

	"gatego/events"
)

// SSEHandler streams gate lifecycle events as Server-Sent Events
func SSEHandler(broker *events.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "Streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		client := broker.Subscribe()
		defer broker.Unsubscribe(client)

		fmt.Fprintf(w, "event: connected\ndata: {\"message\": \"Connected to gate events\"}\n\n")
		flusher.Flush()

		for {
			select {
			case message, ok := <-client:
				if !ok {
					return
				}
				fmt.Fprint(w, message)
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	}
}
