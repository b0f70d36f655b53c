package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/satindergrewal/bioradio/internal/agent"
)

func fakeOllama(t *testing.T, reply string, status int) (*httptest.Server, *phraseRequest) {
	t.Helper()
	var got phraseRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write([]byte(`{"models":[]}`))
		case "/api/generate":
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode request: %v", err)
			}
			w.WriteHeader(status)
			if status != http.StatusOK {
				json.NewEncoder(w).Encode(phraseResponse{Error: reply})
				return
			}
			json.NewEncoder(w).Encode(phraseResponse{Response: reply, Done: true})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

// --- Client ---

func TestPhrase(t *testing.T) {
	srv, got := fakeOllama(t, "  soft rain on a tin roof \n", http.StatusOK)
	c := NewClient(srv.URL+"/", "qwen3:4b", nil)

	out, err := c.Phrase(context.Background(), "sys", "hello")
	if err != nil {
		t.Fatalf("Phrase: %v", err)
	}
	if out != "soft rain on a tin roof" {
		t.Errorf("Phrase = %q", out)
	}
	if got.Model != "qwen3:4b" || got.System != "sys" || got.Prompt != "hello" || got.Stream {
		t.Errorf("Request = %+v", got)
	}
}

func TestPhraseRequestShape(t *testing.T) {
	srv, got := fakeOllama(t, "glassy pads", http.StatusOK)
	if _, err := NewClient(srv.URL, "m", nil).Phrase(context.Background(), "sys", "x"); err != nil {
		t.Fatalf("Phrase: %v", err)
	}
	if got.Options != defaultPhraseOptions {
		t.Errorf("Options = %+v, want %+v", got.Options, defaultPhraseOptions)
	}
	if got.Options.NumPredict > 64 {
		t.Errorf("NumPredict = %d, too long for one phrase", got.Options.NumPredict)
	}
	if got.KeepAlive != keepAlive {
		t.Errorf("KeepAlive = %q, want %q", got.KeepAlive, keepAlive)
	}
}

func TestPhraseStatusError(t *testing.T) {
	srv, _ := fakeOllama(t, `model "m" not found, try pulling it first`, http.StatusNotFound)
	c := NewClient(srv.URL, "m", nil)
	_, err := c.Phrase(context.Background(), "", "x")
	if err == nil || !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "try pulling") {
		t.Errorf("Phrase error = %v, want status 404 with server message", err)
	}
}

func TestPhraseErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"out of memory"}`))
	}))
	defer srv.Close()
	if _, err := NewClient(srv.URL, "m", nil).Phrase(context.Background(), "", "x"); err == nil || !strings.Contains(err.Error(), "out of memory") {
		t.Errorf("Phrase error = %v, want out of memory", err)
	}
}

func TestPing(t *testing.T) {
	srv, _ := fakeOllama(t, "", http.StatusOK)
	if err := NewClient(srv.URL, "m", nil).Ping(context.Background()); err != nil {
		t.Errorf("Ping live server: %v", err)
	}
	if NewClient("http://127.0.0.1:1", "m", nil).Ping(context.Background()) == nil {
		t.Error("Ping should fail for a dead server")
	}
}

func TestAwaitReadyGivesUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if NewClient("http://127.0.0.1:1", "m", nil).AwaitReady(ctx, 10*time.Millisecond) == nil {
		t.Error("AwaitReady should give up when ctx expires")
	}
}

// --- Refiner ---

func TestRefine(t *testing.T) {
	srv, got := fakeOllama(t, "<think>hmm</think>\n\"Warm tape hiss.\"", http.StatusOK)
	r := NewRefiner(NewClient(srv.URL, "m", nil))

	text, err := r.Refine(context.Background(), agent.RefineRequest{
		Mood:        "lofi",
		Description: agent.Describe("lofi"),
		Previous:    "dusty drums",
	})
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if text != "Warm tape hiss" {
		t.Errorf("Refine = %q", text)
	}
	if got.System != agent.RefineSystemPrompt || !strings.Contains(got.Prompt, "dusty drums") {
		t.Errorf("Request = %+v", got)
	}
}

func TestRefineUnusable(t *testing.T) {
	srv, _ := fakeOllama(t, "ok", http.StatusOK)
	r := NewRefiner(NewClient(srv.URL, "m", nil))
	if _, err := r.Refine(context.Background(), agent.RefineRequest{Mood: "lofi"}); err == nil {
		t.Error("Refine should reject a too-short phrase")
	}
}
