//nolint:funlen // ok for tests
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/weblynx-service-go/pkg/kvstore"
	"github.com/mpapenbr/weblynx-service-go/pkg/lynx/decode"
	"github.com/mpapenbr/weblynx-service-go/pkg/model"
	"github.com/mpapenbr/weblynx-service-go/pkg/processing/race"
	"github.com/mpapenbr/weblynx-service-go/pkg/utils/broadcast"
	"github.com/mpapenbr/weblynx-service-go/pkg/view"
	"github.com/mpapenbr/weblynx-service-go/testsupport/lynxdata"
)

const testToken = "secret"

type testEnv struct {
	mgr   *race.Manager
	store kvstore.Store
	srv   *Server
	h     http.Handler
}

func newTestEnv(opts ...race.Option) *testEnv {
	now := lynxdata.TestTime
	mgr := race.NewManager(append([]race.Option{race.WithClock(now)}, opts...)...)
	store := kvstore.NewMemoryStore()
	srv := NewServer(
		WithRaceState(mgr),
		WithKeyValueStore(store),
		WithAdminToken(testToken),
		WithClock(now))
	return &testEnv{mgr: mgr, store: store, srv: srv, h: srv.Routes()}
}

func (e *testEnv) sendText(t *testing.T, text string) {
	t.Helper()
	data, err := decode.EncodeUTF16LE(text)
	require.NoError(t, err)
	e.mgr.ProcessChunk(data, "test")
}

func (e *testEnv) do(method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func adminHeader() map[string]string {
	return map[string]string{tokenHeader: testToken, "Content-Type": "application/json"}
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var ret T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ret))
	return ret
}

func TestHealthAndVersion(t *testing.T) {
	e := newTestEnv()
	rec := e.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodGet, "/api/version", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[map[string]string](t, rec)
	assert.Contains(t, got, "version")
}

func TestGetCurrentRace(t *testing.T) {
	e := newTestEnv()
	e.sendText(t, lynxdata.StartList(lynxdata.SampleEvent(), lynxdata.SampleEntries()))

	rec := e.do(http.MethodGet, "/api/race/current", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	got := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "NotStarted", got["status"])
	racers, ok := got["racers"].([]any)
	require.True(t, ok)
	assert.Len(t, racers, 2)
}

func TestGetRaceData(t *testing.T) {
	e := newTestEnv()
	e.sendText(t, lynxdata.StartList(lynxdata.SampleEvent(), lynxdata.SampleEntries()))
	e.sendText(t, lynxdata.Started([]lynxdata.StartedEntry{
		{Place: "2", Lane: 1, Cum: "10.5", Last: "10.5", Laps: "3"},
		{Place: "1", Lane: 2, Cum: "10.1", Last: "10.1", Laps: "3"},
	}))
	require.NoError(t, e.store.Set(context.Background(), "title", "Cup"))

	tests := []struct {
		sortBy string
		want   []int
	}{
		{"place", []int{2, 1}},
		{"lane", []int{1, 2}},
		{"", []int{2, 1}},
	}
	for _, tt := range tests {
		t.Run("sortBy="+tt.sortBy, func(t *testing.T) {
			rec := e.do(http.MethodGet, "/api/race/race-data?sortBy="+tt.sortBy, "", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			got := decodeBody[view.RaceData](t, rec)
			assert.Equal(t, model.RaceStatusRunning, got.Status)
			assert.Equal(t, map[string]string{"title": "Cup"}, got.KeyValues)
			lanes := make([]int, 0, len(got.Racers))
			for _, r := range got.Racers {
				lanes = append(lanes, r.Lane)
				assert.True(t, r.HasFirstCrossing)
			}
			assert.Equal(t, tt.want, lanes)
		})
	}
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	e := newTestEnv()
	for _, path := range []string{
		"/api/race/test-announcement",
		"/api/race/reset",
		"/api/race/pause",
		"/api/race/resume",
	} {
		t.Run(path, func(t *testing.T) {
			rec := e.do(http.MethodPost, path, `{}`, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			rec = e.do(http.MethodPost, path, `{}`, map[string]string{tokenHeader: "wrong"})
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestBearerToken(t *testing.T) {
	e := newTestEnv()
	rec := e.do(http.MethodPost, "/api/race/reset", "",
		map[string]string{"Authorization": "Bearer " + testToken})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNoAdminTokenConfigured(t *testing.T) {
	mgr := race.NewManager()
	h := NewServer(WithRaceState(mgr)).Routes()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/race/reset", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTestAnnouncement(t *testing.T) {
	e := newTestEnv()
	body, err := json.Marshal(announcementRequest{Message: lynxdata.Announcement("Welcome", "to the final")})
	require.NoError(t, err)

	rec := e.do(http.MethodPost, "/api/race/test-announcement", string(body), adminHeader())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to the final", e.mgr.Snapshot().Announcement)

	rec = e.do(http.MethodPost, "/api/race/test-announcement", `{"message":"  "}`, adminHeader())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = e.do(http.MethodPost, "/api/race/test-announcement", `not json`, adminHeader())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRaceControl(t *testing.T) {
	e := newTestEnv()
	e.sendText(t, lynxdata.StartList(lynxdata.SampleEvent(), lynxdata.SampleEntries()))

	rec := e.do(http.MethodPost, "/api/race/pause", "", adminHeader())
	assert.Equal(t, http.StatusConflict, rec.Code, "not started races cannot be paused")

	e.sendText(t, lynxdata.RunningTime("1.2"))
	require.Equal(t, model.RaceStatusRunning, e.mgr.Snapshot().Status)

	rec = e.do(http.MethodPost, "/api/race/pause", "", adminHeader())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.RaceStatusPaused, e.mgr.Snapshot().Status)

	rec = e.do(http.MethodPost, "/api/race/resume", "", adminHeader())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.RaceStatusRunning, e.mgr.Snapshot().Status)

	rec = e.do(http.MethodPost, "/api/race/resume", "", adminHeader())
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(http.MethodPost, "/api/race/reset", "", adminHeader())
	require.Equal(t, http.StatusOK, rec.Code)
	snap := e.mgr.Snapshot()
	assert.Equal(t, model.RaceStatusNotStarted, snap.Status)
	assert.Empty(t, snap.Racers)
	assert.Nil(t, snap.Event)
}

func TestGetBuffers(t *testing.T) {
	e := newTestEnv()
	e.sendText(t, lynxdata.StartListHeader(lynxdata.SampleEvent()))
	rec := e.do(http.MethodGet, "/api/race/buffers", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[map[string]bufferInfo](t, rec)
	require.Contains(t, got, "test")
	assert.Positive(t, got["test"].Length)
}

func TestKeyValues(t *testing.T) {
	e := newTestEnv()

	rec := e.do(http.MethodPost, "/api/key-values", `{"key":"title","value":"Cup"}`,
		map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"title": "Cup"}, decodeBody[map[string]string](t, rec))

	form := url.Values{"key": {"sponsor"}, "value": {"ACME"}}
	rec = e.do(http.MethodPost, "/api/key-values", form.Encode(),
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodGet, "/api/key-values", "", nil)
	assert.Equal(t, map[string]string{"title": "Cup", "sponsor": "ACME"},
		decodeBody[map[string]string](t, rec))

	rec = e.do(http.MethodGet, "/api/key-values/sponsor", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, keyValue{Key: "sponsor", Value: "ACME"}, decodeBody[keyValue](t, rec))

	// empty value removes the key
	rec = e.do(http.MethodPost, "/api/key-values", `{"key":"sponsor","value":""}`,
		map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(http.MethodGet, "/api/key-values/sponsor", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(http.MethodDelete, "/api/key-values/title", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = e.do(http.MethodGet, "/api/key-values", "", nil)
	assert.Empty(t, decodeBody[map[string]string](t, rec))

	rec = e.do(http.MethodPost, "/api/key-values", `{"key":" ","value":"x"}`,
		map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORS(t *testing.T) {
	h := NewServer(WithRaceState(race.NewManager())).Handler()
	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRaceEventsUnavailable(t *testing.T) {
	e := newTestEnv()
	rec := e.do(http.MethodGet, "/api/race/events", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type sseEvent struct {
	id    string
	event string
	data  string
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.data != "" {
				return ev
			}
		case strings.HasPrefix(line, "id: "):
			ev.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			ev.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestRaceEvents(t *testing.T) {
	src := make(chan *model.RaceData)
	bc := broadcast.NewBroadcastServer("test", src, broadcast.WithSendTimeout[*model.RaceData](time.Second))
	defer bc.Close()
	mgr := race.NewManager(race.WithPublishChannels(src))
	srv := NewServer(WithRaceState(mgr), WithUpdates(bc))
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/race/events", http.NoBody)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	first := readEvent(t, r)
	assert.Equal(t, "1", first.id)
	assert.Equal(t, raceDataEvent, first.event)

	data, err := decode.EncodeUTF16LE(lynxdata.StartList(lynxdata.SampleEvent(), lynxdata.SampleEntries()))
	require.NoError(t, err)
	go mgr.ProcessChunk(data, "test")

	second := readEvent(t, r)
	assert.Equal(t, "2", second.id)
	var rd view.RaceData
	require.NoError(t, json.Unmarshal([]byte(second.data), &rd))
	assert.Len(t, rd.Racers, 2)
	require.NotNil(t, rd.Event)
	assert.Equal(t, "Ladies 500m", rd.Event.EventName)
}
