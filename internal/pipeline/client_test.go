package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voicechat/internal/audio"
	"github.com/lexiqai/voicechat/internal/turn"
)

func startServer(t *testing.T, responder Responder) *Client {
	t.Helper()
	srv := httptest.NewServer(NewServer(NewHandler(responder, 0, zerolog.Nop()), "10M", zerolog.Nop()))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+RoutePath, 5*time.Second, zerolog.Nop())
}

func clientRequest(t *testing.T) turn.Request {
	t.Helper()
	enc, err := audio.EncodeWAV([]float32{0, 0.5, -0.5}, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}
	return turn.Request{Audio: enc, TTSEnabled: true}
}

func TestClient_AudioReplyRoundTrip(t *testing.T) {
	responder := &fakeResponder{resp: turn.AudioReply{
		Transcript: "hello, world?",
		ReplyText:  "Hi there! 100% sure.",
		Audio:      []byte("RIFFaudio"),
		MIMEType:   "audio/wav",
	}}
	client := startServer(t, responder)

	req := clientRequest(t)
	req.History = []turn.Message{{Role: turn.RoleUser, Content: "a"}, {Role: turn.RoleAssistant, Content: "b"}}
	resp := client.Send(context.Background(), req)

	reply, ok := resp.(turn.AudioReply)
	if !ok {
		t.Fatalf("Expected AudioReply, got %#v", resp)
	}
	if reply.Transcript != "hello, world?" || reply.ReplyText != "Hi there! 100% sure." {
		t.Errorf("Headers not decoded: %+v", reply)
	}
	if string(reply.Audio) != "RIFFaudio" {
		t.Errorf("Unexpected audio %q", reply.Audio)
	}

	got := responder.got()
	if got == nil {
		t.Fatal("Expected server to receive the request")
	}
	if len(got.History) != 2 || !got.TTSEnabled {
		t.Errorf("Request fields lost: %+v", got)
	}
	if string(got.Audio.Data) != string(req.Audio.Data) {
		t.Error("Expected audio bytes to arrive unchanged")
	}
}

func TestClient_TextReply(t *testing.T) {
	client := startServer(t, &fakeResponder{resp: turn.TextReply{Transcript: "hello", ReplyText: "Hi", SynthesisFailed: true}})

	resp := client.Send(context.Background(), clientRequest(t))
	reply, ok := resp.(turn.TextReply)
	if !ok || !reply.SynthesisFailed || reply.ReplyText != "Hi" {
		t.Errorf("Expected downgraded TextReply, got %#v", resp)
	}
}

func TestClient_SkipAudioHeader(t *testing.T) {
	responder := &fakeResponder{resp: turn.TextReply{Transcript: "a", ReplyText: "b"}}
	client := startServer(t, responder)

	req := clientRequest(t)
	req.SkipAudio = true
	client.Send(context.Background(), req)

	if responder.got() == nil || !responder.got().SkipAudio {
		t.Error("Expected skip audio to reach the server")
	}
}

func TestClient_FailureStatus(t *testing.T) {
	client := startServer(t, &fakeResponder{resp: turn.Failure{Kind: turn.NoSpeechDetected, Message: turn.MsgNoSpeech}})

	resp := client.Send(context.Background(), clientRequest(t))
	f, ok := resp.(turn.Failure)
	if !ok || f.Kind != turn.NetworkError {
		t.Fatalf("Expected NetworkError, got %#v", resp)
	}
	if f.Message != turn.MsgNoSpeech {
		t.Errorf("Expected server message to be surfaced, got %q", f.Message)
	}
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	resp := NewClient(srv.URL, time.Second, zerolog.Nop()).Send(context.Background(), clientRequest(t))
	if f, ok := resp.(turn.Failure); !ok || f.Kind != turn.NetworkError {
		t.Errorf("Expected NetworkError, got %#v", resp)
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	resp := NewClient(url, time.Second, zerolog.Nop()).Send(context.Background(), clientRequest(t))
	if f, ok := resp.(turn.Failure); !ok || f.Kind != turn.NetworkError {
		t.Errorf("Expected NetworkError, got %#v", resp)
	}
}

func TestClient_Cancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	resp := NewClient(srv.URL, 5*time.Second, zerolog.Nop()).Send(ctx, clientRequest(t))
	if f, ok := resp.(turn.Failure); !ok || f.Kind != turn.NetworkError {
		t.Errorf("Expected NetworkError on cancellation, got %#v", resp)
	}
}

func TestClient_IncompleteReply(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		headers     map[string]string
		body        string
	}{
		{"audio without text headers", "audio/wav", nil, "RIFFaudio"},
		{"audio without reply header", "audio/wav", map[string]string{HeaderTranscript: "hello"}, "RIFFaudio"},
		{"audio with blank transcript", "audio/wav", map[string]string{HeaderTranscript: "%20", HeaderResponse: "Hi"}, "RIFFaudio"},
		{"json without transcript", "application/json", nil, `{"transcript":"","response":"Hi","audioUrl":null}`},
		{"json without response", "application/json", nil, `{"transcript":"hello","response":"  ","audioUrl":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			resp := NewClient(srv.URL, time.Second, zerolog.Nop()).Send(context.Background(), clientRequest(t))
			f, ok := resp.(turn.Failure)
			if !ok || f.Kind != turn.NetworkError {
				t.Fatalf("Expected NetworkError, got %#v", resp)
			}
			if _, ok := turn.Exchange(resp); ok {
				t.Error("Expected no history exchange for an incomplete reply")
			}
		})
	}
}
