package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// handleSSE streams orchestration events as server-sent events. The optional
// job_id query parameter narrows the stream to one job.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	flusher.Flush()

	jobFilter := r.URL.Query().Get("job_id")

	client := s.hub.Subscribe(32)
	defer s.hub.Unsubscribe(client)

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-client:
			if !ok {
				return
			}
			if jobFilter != "" && ev.JobID != jobFilter {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\n", ev.Type)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
