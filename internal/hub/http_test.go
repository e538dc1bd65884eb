package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func postJSON(t *testing.T, srv *httptest.Server, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := srv.Client().Post(srv.URL+path, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHTTPDialogue(t *testing.T) {
	h := newHub(t)
	srv := httptest.NewServer(NewRouter(h))
	defer srv.Close()

	resp, out := postJSON(t, srv, "/dialogues", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "hello()", out["system_act"])
	id, _ := out["dialogue_id"].(string)
	require.NotEmpty(t, id)

	resp, out = postJSON(t, srv, "/dialogues/"+id+"/turns", turnRequest{User: routeTurn})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, out["system_act"], "enter_at")
	assert.EqualValues(t, 2, out["turn"])

	resp, _ = postJSON(t, srv, "/dialogues/"+id+"/turns", turnRequest{User: "garbage"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	ev, err := srv.Client().Get(srv.URL + "/dialogues/" + id + "/events")
	require.NoError(t, err)
	var events struct {
		DialogueID string           `json:"dialogue_id"`
		Events     []map[string]any `json:"events"`
	}
	require.NoError(t, json.NewDecoder(ev.Body).Decode(&events))
	ev.Body.Close()
	assert.Equal(t, id, events.DialogueID)
	assert.Len(t, events.Events, 4)

	resp, _ = postJSON(t, srv, "/dialogues/"+id+"/close", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = postJSON(t, srv, "/dialogues/"+id+"/turns", turnRequest{User: routeTurn})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTPRouting(t *testing.T) {
	h := newHub(t)
	srv := httptest.NewServer(NewRouter(h))
	defer srv.Close()

	for _, tc := range []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/dialogues", http.StatusMethodNotAllowed},
		{http.MethodGet, "/dialogues/x/turns", http.StatusMethodNotAllowed},
		{http.MethodGet, "/dialogues/x/events", http.StatusNotFound},
		{http.MethodPost, "/dialogues/x/nope", http.StatusNotFound},
		{http.MethodPost, "/dialogues/x", http.StatusNotFound},
	} {
		req, err := http.NewRequest(tc.method, srv.URL+tc.path, nil)
		require.NoError(t, err)
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tc.want, resp.StatusCode, "%s %s", tc.method, tc.path)
	}

	h.Shutdown()
	resp, err := srv.Client().Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebsocketDialogue(t *testing.T) {
	h := newHub(t)
	srv := httptest.NewServer(NewRouter(h))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/dialogue", nil)
	require.NoError(t, err)

	var msg wsMessage
	require.NoError(t, wsjson.Read(ctx, c, &msg))
	require.Equal(t, "reply", msg.Type)
	require.NotNil(t, msg.Reply)
	assert.Equal(t, "hello()", msg.Reply.SystemAct)
	id := msg.Reply.DialogueID

	require.NoError(t, wsjson.Write(ctx, c, turnRequest{User: routeTurn}))
	msg = wsMessage{}
	require.NoError(t, wsjson.Read(ctx, c, &msg))
	require.NotNil(t, msg.Reply)
	assert.Contains(t, msg.Reply.SystemAct, "enter_at")

	require.NoError(t, wsjson.Write(ctx, c, turnRequest{User: "garbage"}))
	msg = wsMessage{}
	require.NoError(t, wsjson.Read(ctx, c, &msg))
	assert.Equal(t, "error", msg.Type)

	require.NoError(t, c.Close(ws.StatusNormalClosure, ""))
	require.Eventually(t, func() bool {
		_, err := h.store.Get(id)
		return err != nil
	}, 5*time.Second, 10*time.Millisecond, "socket-owned dialogue is closed with the socket")
}

func TestWebsocketUnknownDialogue(t *testing.T) {
	h := newHub(t)
	srv := httptest.NewServer(NewRouter(h))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/dialogue?dialogue_id=nope", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
