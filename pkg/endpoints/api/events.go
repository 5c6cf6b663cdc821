package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mpapenbr/weblynx-service-go/log"
	"github.com/mpapenbr/weblynx-service-go/pkg/model"
	"github.com/mpapenbr/weblynx-service-go/pkg/view"
)

const raceDataEvent = "race-data"

// raceEvents streams the race data as server sent events.
// The current state is sent first, followed by every update.
//
//nolint:cyclop // select loop
func (s *Server) raceEvents(w http.ResponseWriter, r *http.Request) {
	if s.updates == nil {
		writeError(w, http.StatusServiceUnavailable, "no live updates available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	order := view.ParseSortOrder(r.URL.Query().Get("sortBy"))
	id := uuid.New().String()
	l := s.log.With(log.String("subscriber", id), log.String("remote", r.RemoteAddr))

	updates := s.updates.Subscribe()
	defer s.updates.CancelSubscription(updates)
	l.Debug("subscribed to race events")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var seq int64
	send := func(rd *model.RaceData) error {
		data, err := json.Marshal(s.raceData(r.Context(), rd, order))
		if err != nil {
			return err
		}
		seq++
		if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", seq, raceDataEvent, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	if err := send(s.race.Snapshot()); err != nil {
		l.Debug("could not send initial race data", log.ErrorField(err))
		return
	}

	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			l.Debug("race events client gone", log.Int64("sent", seq))
			return
		case rd, ok := <-updates:
			if !ok {
				l.Debug("race events source closed")
				return
			}
			if err := send(rd); err != nil {
				l.Debug("could not send race data", log.ErrorField(err))
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
