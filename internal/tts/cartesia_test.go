package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voicechat/internal/resilience"
)

func testConfig(url string) CartesiaConfig {
	return CartesiaConfig{
		APIKey:  "cartesia-key",
		BaseURL: url,
		Version: "2024-06-30",
		ModelID: "sonic-english",
		VoiceID: "voice-1",
		Breaker: resilience.Settings{MaxFailures: 3, ResetTimeout: time.Minute},
	}
}

func TestCartesiaClient_Synthesize(t *testing.T) {
	var got CartesiaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts/bytes" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "cartesia-key" {
			t.Errorf("Unexpected api key header %q", r.Header.Get("X-API-Key"))
		}
		if r.Header.Get("Cartesia-Version") != "2024-06-30" {
			t.Errorf("Unexpected version header %q", r.Header.Get("Cartesia-Version"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte("RIFFwavdata"))
	}))
	defer srv.Close()

	c := NewCartesiaClient(testConfig(srv.URL), zerolog.Nop())
	speech, err := c.Synthesize(context.Background(), "Hi there!")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(speech.Data) != "RIFFwavdata" || speech.MIMEType != "audio/wav" {
		t.Errorf("Unexpected speech %q %s", speech.Data, speech.MIMEType)
	}

	if got.Transcript != "Hi there!" || got.ModelID != "sonic-english" {
		t.Errorf("Unexpected request %+v", got)
	}
	if got.Voice.Mode != "id" || got.Voice.ID != "voice-1" {
		t.Errorf("Unexpected voice %+v", got.Voice)
	}
	if got.OutputFormat != DefaultOutputFormat() {
		t.Errorf("Unexpected output format %+v", got.OutputFormat)
	}
}

func TestCartesiaClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid voice", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewCartesiaClient(testConfig(srv.URL), zerolog.Nop())
	if _, err := c.Synthesize(context.Background(), "hello"); err == nil {
		t.Error("Expected error for 400")
	}
}

func TestCartesiaClient_EmptyText(t *testing.T) {
	c := NewCartesiaClient(testConfig("http://unused"), zerolog.Nop())
	if _, err := c.Synthesize(context.Background(), "  "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("Expected ErrEmptyText, got %v", err)
	}
}
