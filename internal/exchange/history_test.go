package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const klinesBody = `[
 [1700000000000,"100.0","101.0","99.0","100.5","10",1700000299999,"1000",5,"5","500","0"],
 [1700000300000,"100.5","102.0","100.0","101.25","12",1700000599999,"1200",6,"6","600","0"],
 [1700000600000,"101.25","103.0","101.0","102.75","9",1700000899999,"900",4,"4","400","0"]
]`

func TestKlineSourceCloses(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		_, _ = w.Write([]byte(klinesBody))
	}))
	defer srv.Close()

	src := NewKlineSource(srv.URL, "", "", time.Second, time.Second)
	closes, err := src.Closes(context.Background(), "btcusdt", "5m", 50)
	require.NoError(t, err)
	assert.Equal(t, []float64{100.5, 101.25, 102.75}, closes)
	assert.Contains(t, gotQuery, "symbol=BTCUSDT")
	assert.Contains(t, gotQuery, "interval=5m")
	assert.Contains(t, gotQuery, "limit=50")
}

func TestKlineSourceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	src := NewKlineSource(srv.URL, "", "", time.Second, time.Second)
	_, err := src.Closes(context.Background(), "NOPE", "5m", 50)
	assert.Error(t, err)

	_, err = src.Closes(context.Background(), "", "5m", 50)
	assert.Error(t, err)
}

func TestKlineSourceInsufficientHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[1700000000000,"1","1","1","1","1",1700000299999,"1",1,"1","1","0"]]`))
	}))
	defer srv.Close()

	src := NewKlineSource(srv.URL, "", "", time.Second, time.Second)
	_, err := src.Closes(context.Background(), "BTCUSDT", "5m", 50)
	assert.Error(t, err)
}

func TestKlineSourceReadTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	src := NewKlineSource(srv.URL, "", "", 100*time.Millisecond, 50*time.Millisecond)
	_, err := src.Closes(context.Background(), "BTCUSDT", "5m", 50)
	assert.Error(t, err)
}
