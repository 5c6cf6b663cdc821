package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mpapenbr/weblynx-service-go/log"
	"github.com/mpapenbr/weblynx-service-go/pkg/lynx/decode"
	"github.com/mpapenbr/weblynx-service-go/pkg/model"
	"github.com/mpapenbr/weblynx-service-go/pkg/processing/race"
	"github.com/mpapenbr/weblynx-service-go/pkg/view"
	"github.com/mpapenbr/weblynx-service-go/version"
)

const announcementLabel = "Test Announcement"

type (
	announcementRequest struct {
		Message string `json:"message"`
	}
	bufferInfo struct {
		Length      int       `json:"length"`
		LastUpdated time.Time `json:"lastUpdated"`
	}
)

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":   version.Version,
		"gitCommit": version.GitCommit,
		"buildDate": version.BuildDate,
	})
}

func (s *Server) getCurrentRace(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.race.Snapshot())
}

func (s *Server) getRaceData(w http.ResponseWriter, r *http.Request) {
	order := view.ParseSortOrder(r.URL.Query().Get("sortBy"))
	writeJSON(w, http.StatusOK, s.raceData(r.Context(), s.race.Snapshot(), order))
}

func (s *Server) getBuffers(w http.ResponseWriter, _ *http.Request) {
	ret := make(map[string]bufferInfo)
	for k, v := range s.race.BufferStatus() {
		ret[k] = bufferInfo{Length: v.Length, LastUpdated: v.LastUpdated}
	}
	writeJSON(w, http.StatusOK, ret)
}

// testAnnouncement sends the message through the regular processing as the timing
// device would do.
func (s *Server) testAnnouncement(w http.ResponseWriter, r *http.Request) {
	var req announcementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	data, err := decode.EncodeUTF16LE(req.Message)
	if err != nil {
		s.log.Error("could not encode announcement", log.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.race.ProcessChunk(data, announcementLabel)
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

func (s *Server) reset(w http.ResponseWriter, _ *http.Request) {
	s.race.Reset()
	writeJSON(w, http.StatusOK, s.race.Snapshot())
}

func (s *Server) pause(w http.ResponseWriter, _ *http.Request) {
	s.control(w, s.race.Pause)
}

func (s *Server) resume(w http.ResponseWriter, _ *http.Request) {
	s.control(w, s.race.Resume)
}

func (s *Server) control(w http.ResponseWriter, action func() error) {
	if err := action(); err != nil {
		if errors.Is(err, race.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.race.Snapshot())
}

func (s *Server) raceData(ctx context.Context, rd *model.RaceData, order view.SortOrder) *view.RaceData {
	kv, err := s.store.All(ctx)
	if err != nil {
		s.log.Warn("could not read key values", log.ErrorField(err))
	}
	return view.NewRaceData(rd, s.race.LapCounterSettings(), kv, order, s.now())
}
