package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncoderArgs(t *testing.T) {
	h := NewHTTPHandler(NewBroadcaster(), "")
	args := strings.Join(h.encoderArgs(), " ")
	for _, want := range []string{"-ar 48000", "-ac 2", "-b:a 192k", "-f s16le"} {
		assert.Contains(t, args, want)
	}

	h = NewHTTPHandler(NewBroadcaster(), "320k")
	assert.Contains(t, strings.Join(h.encoderArgs(), " "), "-b:a 320k", "configured bitrate not used")
}

func TestWebRTCRejectsBadRequests(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster(), 0)
	assert.Equal(t, 128000, h.bitrate, "default bitrate")

	tests := []struct {
		method string
		body   string
		want   int
	}{
		{http.MethodGet, "", http.StatusMethodNotAllowed},
		{http.MethodPost, "not json", http.StatusBadRequest},
		{http.MethodPost, `{"type":"offer"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, "/api/monitor/offer", strings.NewReader(tt.body))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tt.want, rec.Code, "%s %q", tt.method, tt.body)
	}
	assert.Zero(t, h.PeerCount())
}
