package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/mpapenbr/weblynx-service-go/log"
	"github.com/mpapenbr/weblynx-service-go/pkg/kvstore"
)

type keyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) getKeyValues(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.All(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) getKeyValue(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	v, err := s.store.Get(r.Context(), key)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keyValue{Key: key, Value: v})
}

// postKeyValue accepts json or form data. An empty value removes the key.
func (s *Server) postKeyValue(w http.ResponseWriter, r *http.Request) {
	req, err := readKeyValue(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Key = strings.TrimSpace(req.Key)
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	if err := s.store.Set(r.Context(), req.Key, req.Value); err != nil {
		s.storeError(w, err)
		return
	}
	s.log.Debug("key value changed", log.String("key", req.Key), log.String("value", req.Value))
	s.getKeyValues(w, r)
}

func (s *Server) deleteKeyValue(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("key")); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Error("key value store failed", log.ErrorField(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func readKeyValue(r *http.Request) (keyValue, error) {
	var ret keyValue
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		err := json.NewDecoder(r.Body).Decode(&ret)
		return ret, err
	}
	if err := r.ParseForm(); err != nil {
		return ret, err
	}
	ret.Key = r.PostForm.Get("key")
	ret.Value = r.PostForm.Get("value")
	return ret, nil
}
