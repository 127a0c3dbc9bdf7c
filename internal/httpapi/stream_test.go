package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamSession_PushesUntilExpiry(t *testing.T) {
	f := newAPI(t)
	token := f.register("Dr. Grace", "grace@uni.edu", "lecturer", "")
	code, sess := f.do(http.MethodPost, "/v1/courses/c2/sessions", token, nil)
	require.Equal(t, http.StatusCreated, code)

	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/" + sess["id"].(string) + "/stream?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first sessionView
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "active", string(first.Status))
	require.NotNil(t, first.Proof)
	assert.Contains(t, first.Proof.Payload, first.Proof.Token)

	f.skew.Store(int64(time.Hour))

	var last sessionView
	require.NoError(t, conn.ReadJSON(&last))
	assert.Equal(t, "expired", string(last.Status))
	assert.Nil(t, last.Proof)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestStreamSession_RequiresToken(t *testing.T) {
	f := newAPI(t)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/sessions/x/stream", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStreamSession_RejectsForeignOrigin(t *testing.T) {
	f := newAPI(t)
	token := f.register("Dr. Grace", "grace@uni.edu", "lecturer", "")
	code, sess := f.do(http.MethodPost, "/v1/courses/c2/sessions", token, nil)
	require.Equal(t, http.StatusCreated, code)

	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/" + sess["id"].(string) + "/stream?token=" + token
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://attend.example.edu"}})
	require.NoError(t, err)
	conn.Close()
}

func TestHandler_CORSPreflight(t *testing.T) {
	f := newAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/scans", nil)
	req.Header.Set("Origin", "https://attend.example.edu")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization")
	w := httptest.NewRecorder()

	f.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://attend.example.edu", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestHandler_CORSRejectsUnknownOrigin(t *testing.T) {
	f := newAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/scans", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization")
	w := httptest.NewRecorder()

	f.server.Handler().ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
