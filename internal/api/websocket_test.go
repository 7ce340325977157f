package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/co2scale/internal/monitor"
	"codeberg.org/mutker/co2scale/internal/scale"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleEnvelope struct {
	Type string         `json:"type"`
	Data monitor.Sample `json:"data"`
}

func TestWebSocketStreamsSamples(t *testing.T) {
	f := newFixture(t)
	f.samples.set(monitor.Sample{View: monitor.ViewHome, Reading: scale.Reading{ID: "first"}})

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() sampleEnvelope {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)

		var env sampleEnvelope
		require.NoError(t, json.Unmarshal(msg, &env))
		return env
	}

	env := read()
	assert.Equal(t, "sample", env.Type)
	assert.Equal(t, "first", env.Data.Reading.ID)

	f.samples.ch <- monitor.Sample{View: monitor.ViewHome, Reading: scale.Reading{ID: "second", Load: 3}}

	env = read()
	assert.Equal(t, "sample", env.Type)
	assert.Equal(t, "second", env.Data.Reading.ID)
	assert.Equal(t, 3.0, env.Data.Reading.Load)
}

func TestWebSocketClosesWithMonitor(t *testing.T) {
	f := newFixture(t)

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	close(f.samples.ch)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"closed"}`, string(msg))
}
