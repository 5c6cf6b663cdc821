package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/weblynx-service-go/log"
	"github.com/mpapenbr/weblynx-service-go/pkg/config"
	"github.com/mpapenbr/weblynx-service-go/pkg/endpoints/api"
	"github.com/mpapenbr/weblynx-service-go/pkg/kvstore"
	"github.com/mpapenbr/weblynx-service-go/pkg/model"
	"github.com/mpapenbr/weblynx-service-go/pkg/processing/race"
	"github.com/mpapenbr/weblynx-service-go/pkg/utils/broadcast"
	"github.com/mpapenbr/weblynx-service-go/pkg/view"
)

var errStore = errors.New("store unavailable")

type failingStore struct {
	kvstore.Store
}

func (failingStore) All(context.Context) (map[string]string, error) {
	return nil, errStore
}

func TestViewConverter(t *testing.T) {
	store := kvstore.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), "location", "Oval"))
	tests := []struct {
		name    string
		store   kvstore.Store
		want    map[string]string
		wantLog string
	}{
		{"key values", store, map[string]string{"location": "Oval"}, ""},
		{"store error", failingStore{}, map[string]string{}, errStore.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			conv := viewConverter(context.Background(), tt.store,
				config.DefaultLapCounterSettings, log.New(&buf, log.DebugLevel))
			got, ok := conv(model.NewRaceData(time.Now())).(*view.RaceData)
			require.True(t, ok)
			assert.Equal(t, tt.want, got.KeyValues)
			if tt.wantLog == "" {
				assert.Empty(t, buf.String())
			} else {
				assert.Contains(t, buf.String(), "could not read key values")
				assert.Contains(t, buf.String(), tt.wantLog)
			}
		})
	}
}

func TestHTTPShutdownEndsRaceEvents(t *testing.T) {
	src := make(chan *model.RaceData)
	updates := broadcast.NewBroadcastServer("test", src)
	defer updates.Close()
	mgr := race.NewManager(race.WithPublishChannels(src))
	apiServer := api.NewServer(api.WithRaceState(mgr), api.WithUpdates(updates))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	hs := newHTTPServer(ln.Addr().String(), apiServer.Handler(), updates)
	served := make(chan error, 1)
	go func() { served <- hs.Serve(ln) }()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet,
		"http://"+ln.Addr().String()+"/api/race/events", http.NoBody)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// wait for the initial snapshot, the stream is active from here on
	r := bufio.NewReader(resp.Body)
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, hs.Shutdown(ctx))
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, errors.Is(<-served, http.ErrServerClosed))
}
