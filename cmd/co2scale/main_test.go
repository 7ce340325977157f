package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"codeberg.org/mutker/co2scale/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScale struct {
	hits     atomic.Int64
	lastBody atomic.Value
}

func newFakeScale(t *testing.T) (*fakeScale, *httptest.Server) {
	t.Helper()

	f := &fakeScale{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/load", func(w http.ResponseWriter, _ *http.Request) {
		f.hits.Add(1)
		_, _ = io.WriteString(w, `{"info":"OK","tare":0,"load":-120,"contained_co2":5000}`)
	})
	mux.HandleFunc("/api/v1/contained-co2", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		f.lastBody.Store(string(body))
		_, _ = io.WriteString(w, `{"info":"OK"}`)
	})
	mux.HandleFunc("/api/v1/tare", func(w http.ResponseWriter, _ *http.Request) {
		f.hits.Add(1)
		_, _ = io.WriteString(w, `{"info":"OK"}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CO2SCALE_CONFIG", "")

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	root := newRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"watch", "serve", "status", "tare", "set-baseline"}, names)

	assert.NotNil(t, root.PersistentFlags().Lookup("address"))
	assert.NotNil(t, root.PersistentFlags().Lookup("overlap-policy"))
}

func TestStatusJSON(t *testing.T) {
	_, srv := newFakeScale(t)

	out, err := execute(t, "status", "--json", "--address", srv.URL)
	require.NoError(t, err)

	var got statusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, srv.URL, got.Address)
	assert.Equal(t, 120.0, got.State.UsedMass)
	assert.Equal(t, 4880.0, got.State.RemainingMass)
	assert.Equal(t, 5000.0, got.ConfirmedBaseline)
}

func TestStatusText(t *testing.T) {
	_, srv := newFakeScale(t)

	out, err := execute(t, "status", "--address", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "4880g remaining (120g used of 5000g)")
}

func TestSetBaseline(t *testing.T) {
	f, srv := newFakeScale(t)

	out, err := execute(t, "set-baseline", "300", "--address", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "contained CO2 set to 300g")
	assert.JSONEq(t, `{"contained_co2":300}`, f.lastBody.Load().(string))
}

func TestSetBaselineInvalidInputSendsNothing(t *testing.T) {
	f, srv := newFakeScale(t)

	_, err := execute(t, "set-baseline", "abc", "--address", srv.URL)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Zero(t, f.hits.Load())
}

func TestTare(t *testing.T) {
	f, srv := newFakeScale(t)

	out, err := execute(t, "tare", "--address", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "tared OK")
	assert.EqualValues(t, 1, f.hits.Load())
}

func TestWatchRejectsUnknownView(t *testing.T) {
	_, srv := newFakeScale(t)

	_, err := execute(t, "watch", "--view", "kitchen", "--address", srv.URL)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestInvalidConfigFails(t *testing.T) {
	_, err := execute(t, "status", "--overlap-policy", "newest")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestInvalidLogLevelFails(t *testing.T) {
	_, err := execute(t, "status", "--log-level", "loud")
	require.Error(t, err)

	code, ok := errors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrInvalidLogLevel, code)
}
