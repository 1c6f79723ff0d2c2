package alvlbot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t testing.TB) (*AlvlBot, *API) {
	t.Helper()
	bot, _ := newTestBot(t)
	bot.startedAt = time.Now()
	api, err := newAPI(bot, bot.config.API)
	require.NoError(t, err)
	bot.api = api
	return bot, api
}

func TestAPIHealthCheck(t *testing.T) {
	_, api := newTestAPI(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, apiHealthCheck, nil)
	api.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(xRequestIDHeader))
}

func TestAPIStatus(t *testing.T) {
	bot, api := newTestAPI(t)

	require.NoError(
		t,
		bot.store.AddUnregistered("1", UnregisteredRecord{Username: "a"}),
	)
	require.NoError(
		t,
		bot.store.PromoteClient("2", ClientRecord{Username: "b"}),
	)
	_, err := bot.db.Create(
		context.Background(),
		&Ticket{UserID: "1", ChannelID: "chan-1", ChannelName: "orcamento-a"},
	)
	require.NoError(t, err)
	_, err = bot.db.Create(
		context.Background(),
		&Ticket{
			UserID:    "2",
			ChannelID: "chan-2",
			ClosedAt:  time.Now().UnixMilli(),
			ClosedBy:  "42",
		},
	)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, apiPathStatus, nil)
	api.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var status botStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))

	assert.False(t, status.DiscordConnected)
	assert.Equal(t, int64(1), status.OpenTickets)
	assert.Equal(t, 1, status.Tables["unregistered"])
	assert.Equal(t, 0, status.Tables["registered"])
	assert.Equal(t, 1, status.Tables["clients"])
	assert.NotEmpty(t, status.Uptime)
}

func TestAPITickets(t *testing.T) {
	bot, api := newTestAPI(t)

	_, err := bot.db.Create(
		context.Background(),
		&Ticket{UserID: "1", ChannelID: "chan-1", ChannelName: "orcamento-a"},
	)
	require.NoError(t, err)
	_, err = bot.db.Create(
		context.Background(),
		&Ticket{
			UserID:      "2",
			ChannelID:   "chan-2",
			ChannelName: "orcamento-b",
			ClosedAt:    time.Now().UnixMilli(),
			ClosedBy:    "42",
		},
	)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, apiPathTickets, nil)
	api.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var payload struct {
		Tickets []Ticket `json:"tickets"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Len(t, payload.Tickets, 2)

	// open-only filter
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, apiPathTickets+"?open=true", nil)
	api.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	payload.Tickets = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Len(t, payload.Tickets, 1)
	assert.Equal(t, "chan-1", payload.Tickets[0].ChannelID)
}

func TestAPIRequestMetrics(t *testing.T) {
	_, api := newTestAPI(t)

	for range 3 {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, apiHealthCheck, nil)
		api.engine.ServeHTTP(w, req)
	}

	api.requestMetricsMu.Lock()
	defer api.requestMetricsMu.Unlock()
	assert.Equal(t, 3, api.requestMetrics["GET "+apiHealthCheck])
}
