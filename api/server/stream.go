package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"aidledger/core/notify"
)

const streamKeepalive = 15 * time.Second

// handleEventStream sends BatchSubmitted events as server-sent events. With
// ?from=N the stored log from N is replayed before live delivery starts.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "StreamingUnsupported", "streaming unsupported", nil)
		return
	}
	var (
		replay bool
		from   uint64
	)
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "InvalidFrom", err.Error(), nil)
			return
		}
		replay, from = true, n
	}

	// Subscribe before replaying so nothing committed in between is lost.
	ch, cancel := s.hub.Subscribe(s.opts.EventBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	next := uint64(0)
	if replay {
		next = from
		for {
			events, err := s.prog.Events(next, s.replayPage)
			if err != nil {
				s.logger.Error().Err(err).Msg("replay events")
				return
			}
			for _, ev := range events {
				if err := writeSSE(w, notify.Notification{Seq: ev.Seq, Event: ev.Event}); err != nil {
					return
				}
				next = ev.Seq + 1
			}
			flusher.Flush()
			if len(events) < s.replayPage {
				break
			}
		}
	}

	ticker := time.NewTicker(streamKeepalive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			if replay && n.Seq < next {
				continue
			}
			if err := writeSSE(w, n); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, n notify.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: BatchSubmitted\ndata: %s\n\n", n.Seq, data)
	return err
}
