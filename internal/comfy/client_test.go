package comfy_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/seantiz/comfybridge/internal/comfy"
	"github.com/seantiz/comfybridge/internal/workflow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testGraph() workflow.Graph {
	return workflow.Graph{
		"3": {ClassType: "KSampler", Inputs: map[string]any{"seed": 1}},
	}
}

func TestSubmitPrompt(t *testing.T) {
	var gotBody struct {
		Prompt   map[string]any `json:"prompt"`
		ClientID string         `json:"client_id"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/prompt" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"prompt_id": "prompt-123"})
	}))
	defer srv.Close()

	c := comfy.NewClient(srv.URL, "", testLogger())
	id, err := c.SubmitPrompt(context.Background(), testGraph(), "run-abc")
	if err != nil {
		t.Fatalf("SubmitPrompt() error = %v", err)
	}
	if id != "prompt-123" {
		t.Errorf("prompt id = %q, want prompt-123", id)
	}
	if gotBody.ClientID != "run-abc" {
		t.Errorf("client_id = %q, want run-abc", gotBody.ClientID)
	}
	if _, ok := gotBody.Prompt["3"]; !ok {
		t.Error("submitted payload missing graph node 3")
	}
}

func TestSubmitPromptRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid prompt"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := comfy.NewClient(srv.URL, "", testLogger())
	_, err := c.SubmitPrompt(context.Background(), testGraph(), "run-abc")
	if !errors.Is(err, comfy.ErrSubmission) {
		t.Fatalf("SubmitPrompt() error = %v, want ErrSubmission", err)
	}
}

func TestSubmitPromptMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"number": 7}`))
	}))
	defer srv.Close()

	c := comfy.NewClient(srv.URL, "", testLogger())
	_, err := c.SubmitPrompt(context.Background(), testGraph(), "")
	if !errors.Is(err, comfy.ErrSubmission) {
		t.Fatalf("SubmitPrompt() error = %v, want ErrSubmission", err)
	}
}

func TestAwaitOutputsWrappedEnvelope(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/history/p1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		polls++
		if polls < 2 {
			w.Write([]byte(`{}`))
			return
		}
		w.Write([]byte(`{"p1": {"outputs": {"9": {"images": [{"filename": "a.png", "subfolder": "", "type": "output"}]}}}}`))
	}))
	defer srv.Close()

	c := comfy.NewClient(srv.URL, "", testLogger())
	outputs, err := c.AwaitOutputs(context.Background(), "p1", 10*time.Second)
	if err != nil {
		t.Fatalf("AwaitOutputs() error = %v", err)
	}
	if len(outputs["9"].Images) != 1 || outputs["9"].Images[0].Filename != "a.png" {
		t.Errorf("outputs = %+v, want node 9 with a.png", outputs)
	}
	if polls < 2 {
		t.Errorf("polled %d times, want at least 2", polls)
	}
}

func TestAwaitOutputsBareEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"outputs": {"12": {"images": [{"filename": "b.png"}]}}}`))
	}))
	defer srv.Close()

	c := comfy.NewClient(srv.URL, "", testLogger())
	outputs, err := c.AwaitOutputs(context.Background(), "p2", 10*time.Second)
	if err != nil {
		t.Fatalf("AwaitOutputs() error = %v", err)
	}
	if outputs["12"].Images[0].Filename != "b.png" {
		t.Errorf("outputs = %+v, want node 12 with b.png", outputs)
	}
}

func TestAwaitOutputsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`)) // never finishes
	}))
	defer srv.Close()

	c := comfy.NewClient(srv.URL, "", testLogger())
	_, err := c.AwaitOutputs(context.Background(), "p3", 100*time.Millisecond)
	if !errors.Is(err, comfy.ErrPollTimeout) {
		t.Fatalf("AwaitOutputs() error = %v, want ErrPollTimeout", err)
	}
}

func TestAwaitOutputsContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	c := comfy.NewClient(srv.URL, "", testLogger())
	_, err := c.AwaitOutputs(ctx, "p4", time.Minute)
	if err == nil {
		t.Fatal("AwaitOutputs() returned nil after context cancellation")
	}
}

func TestSelectOutputImage(t *testing.T) {
	outputs := map[string]comfy.NodeOutput{
		"10": {Images: []comfy.ImageRef{{Filename: "ten.png"}}},
		"2":  {Images: []comfy.ImageRef{{Filename: "two.png"}}},
		"5":  {}, // no images
	}

	tests := []struct {
		name      string
		preferred string
		want      string
	}{
		{"preferred node wins", "10", "ten.png"},
		{"missing preferred falls back to sorted order", "99", "ten.png"},
		{"empty preferred falls back to sorted order", "", "ten.png"},
		{"preferred without images falls back", "5", "ten.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := comfy.SelectOutputImage(outputs, tt.preferred)
			if err != nil {
				t.Fatalf("SelectOutputImage() error = %v", err)
			}
			if got.Filename != tt.want {
				t.Errorf("filename = %q, want %q", got.Filename, tt.want)
			}
		})
	}

	t.Run("no images anywhere", func(t *testing.T) {
		_, err := comfy.SelectOutputImage(map[string]comfy.NodeOutput{"1": {}}, "")
		if !errors.Is(err, comfy.ErrNoOutput) {
			t.Fatalf("error = %v, want ErrNoOutput", err)
		}
	})
}

func TestFetchImageFromDisk(t *testing.T) {
	outputDir := t.TempDir()
	sub := filepath.Join(outputDir, "renders")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "art.png"), []byte("png-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Any HTTP request means the fast path was skipped.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected HTTP request %s", r.URL)
	}))
	defer srv.Close()

	c := comfy.NewClient(srv.URL, outputDir, testLogger())
	data, err := c.FetchImage(context.Background(), comfy.ImageRef{Filename: "art.png", Subfolder: "renders"})
	if err != nil {
		t.Fatalf("FetchImage() error = %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("data = %q, want png-bytes", data)
	}
}

func TestFetchImageViaView(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/view" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("filename") != "art.png" || q.Get("subfolder") != "renders" || q.Get("type") != "output" {
			t.Errorf("unexpected query %v", q)
		}
		w.Write([]byte("view-bytes"))
	}))
	defer srv.Close()

	// Output dir points somewhere empty, so the disk read misses and the
	// client falls back to /view.
	c := comfy.NewClient(srv.URL, t.TempDir(), testLogger())
	data, err := c.FetchImage(context.Background(), comfy.ImageRef{Filename: "art.png", Subfolder: "renders"})
	if err != nil {
		t.Fatalf("FetchImage() error = %v", err)
	}
	if string(data) != "view-bytes" {
		t.Errorf("data = %q, want view-bytes", data)
	}
}

func TestFetchImageViewError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := comfy.NewClient(srv.URL, "", testLogger())
	_, err := c.FetchImage(context.Background(), comfy.ImageRef{Filename: "gone.png"})
	if !errors.Is(err, comfy.ErrTransport) {
		t.Fatalf("FetchImage() error = %v, want ErrTransport", err)
	}
}
