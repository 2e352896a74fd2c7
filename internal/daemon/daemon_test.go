package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"testing"

	"roastmachine/internal/config"
	"roastmachine/internal/daemon"
	"roastmachine/internal/inference"
	"roastmachine/internal/logging"
	"roastmachine/internal/notifications"
	"roastmachine/internal/pipeline"
	"roastmachine/internal/testsupport"
	"roastmachine/internal/workflow"
)

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(context.Context, inference.Audio) (string, error) {
	return "we will we will rock you", nil
}

type stubIdentifier struct{}

func (stubIdentifier) IdentifySong(context.Context, string) (inference.SongMatch, error) {
	return inference.SongMatch{DetectedSong: "We Will Rock You", Confidence: 0.9, Accuracy: 0.4}, nil
}

type stubCommentator struct{}

func (stubCommentator) GenerateCommentary(context.Context, inference.CommentaryRequest) (string, error) {
	return "Queen called. They want their dignity back.", nil
}

type silentNotifier struct{}

func (silentNotifier) Publish(context.Context, notifications.Event, notifications.Payload) error {
	return nil
}

func newDaemon(t *testing.T) (*daemon.Daemon, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.AwaitPollInterval = 1
	cfg.Pipeline.AwaitMaxPolls = 10
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	runs := testsupport.MustOpenStore(t, cfg)
	sessions := testsupport.MustOpenSessions(t, cfg)
	adapters := inference.Adapters{
		Transcriber: stubTranscriber{},
		Identifier:  stubIdentifier{},
		Commentator: stubCommentator{},
	}
	runner := pipeline.NewRunner(runs, sessions, adapters, logging.NewNop())
	mgr := workflow.NewManagerWithNotifier(cfg, runs, runner, logging.NewNop(), silentNotifier{})
	d, err := daemon.New(cfg, runs, sessions, mgr, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d, cfg
}

func startDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	d, _ := newDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

type envelope struct {
	Success          bool            `json:"success"`
	Data             json.RawMessage `json:"data"`
	Error            string          `json:"error"`
	ErrorKind        string          `json:"errorKind"`
	Timestamp        string          `json:"timestamp"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Timestamp == "" {
		t.Fatal("envelope missing timestamp")
	}
	return env
}

func uploadBody(t *testing.T, userID, contentType string, audio []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if userID != "" {
		if err := writer.WriteField("userId", userID); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if audio != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="audio"; filename="clip"`)
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(audio); err != nil {
			t.Fatalf("write audio: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := newDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !d.Status(ctx).Running {
		t.Fatal("expected daemon to report running")
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	first, cfg := newDaemon(t)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(first.Stop)

	runs := testsupport.MustOpenStore(t, cfg)
	sessions := testsupport.MustOpenSessions(t, cfg)
	mgr := workflow.NewManagerWithNotifier(cfg, runs, nil, logging.NewNop(), silentNotifier{})
	second, err := daemon.New(cfg, runs, sessions, mgr, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected lock contention to fail the second start")
	}
}

func TestProcessAudioRoundTrip(t *testing.T) {
	d := startDaemon(t)
	base := "http://" + d.Address()

	body, contentType := uploadBody(t, "freddie", "audio/webm", []byte("fake audio"))
	resp, err := http.Post(base+"/api/process-audio", contentType, body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}
	env := decodeEnvelope(t, resp)
	if !env.Success {
		t.Fatalf("envelope failure: %s", env.Error)
	}

	var output pipeline.Output
	if err := json.Unmarshal(env.Data, &output); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if !output.Success || output.Analysis.DetectedSong != "We Will Rock You" {
		t.Fatalf("unexpected output %+v", output)
	}
	if output.Roast.Style != pipeline.StyleAIGenerated || output.UserStats == nil || output.UserStats.TotalAttempts != 1 {
		t.Fatalf("unexpected roast or stats %+v", output)
	}

	pollResp, err := http.Get(base + "/api/runs/" + output.RunID)
	if err != nil {
		t.Fatalf("GET run: %v", err)
	}
	pollEnv := decodeEnvelope(t, pollResp)
	var run struct {
		Status string          `json:"status"`
		Output json.RawMessage `json:"output"`
	}
	if err := json.Unmarshal(pollEnv.Data, &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.Status != "complete" || !bytes.Equal(bytes.TrimSpace(run.Output), bytes.TrimSpace(env.Data)) {
		t.Fatalf("poll output differs: %s vs %s", run.Output, env.Data)
	}

	statsResp, err := http.Get(base + "/api/user/stats?userId=freddie")
	if err != nil {
		t.Fatalf("GET stats: %v", err)
	}
	statsEnv := decodeEnvelope(t, statsResp)
	var stats struct {
		TotalAttempts      int    `json:"totalAttempts"`
		FavoriteVictimSong string `json:"favoriteVictimSong"`
	}
	if err := json.Unmarshal(statsEnv.Data, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalAttempts != 1 || stats.FavoriteVictimSong != "We Will Rock You" {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestProcessAudioRejectsBadUploads(t *testing.T) {
	d := startDaemon(t)
	base := "http://" + d.Address()

	cases := []struct {
		name        string
		userID      string
		contentType string
		audio       []byte
	}{
		{"wrong type", "u1", "video/mp4", []byte("x")},
		{"missing audio", "u1", "", nil},
		{"missing user", "", "audio/wav", []byte("x")},
		{"oversize", "u1", "audio/wav", bytes.Repeat([]byte("a"), 10*1024*1024+1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, contentType := uploadBody(t, tc.userID, tc.contentType, tc.audio)
			resp, err := http.Post(base+"/api/process-audio", contentType, body)
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			env := decodeEnvelope(t, resp)
			if env.Success || env.ErrorKind != "validation" {
				t.Fatalf("unexpected envelope %+v", env)
			}
		})
	}
}

func TestUserRoutes(t *testing.T) {
	d := startDaemon(t)
	base := "http://" + d.Address()

	resp := postJSON(t, base+"/api/user/intensity", `{"userId":"brian","intensity":"savage"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("intensity before init: status = %d", resp.StatusCode)
	}
	if env := decodeEnvelope(t, resp); env.ErrorKind != "state" {
		t.Fatalf("error kind = %q", env.ErrorKind)
	}

	resp = postJSON(t, base+"/api/user/init", `{"userId":"brian"}`)
	if env := decodeEnvelope(t, resp); !env.Success {
		t.Fatalf("init failed: %s", env.Error)
	}

	resp = postJSON(t, base+"/api/user/intensity", `{"userId":"brian","intensity":"nuclear"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid intensity: status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, base+"/api/user/intensity", `{"userId":"brian","intensity":"savage"}`)
	if env := decodeEnvelope(t, resp); !env.Success || !strings.Contains(string(env.Data), `"savage"`) {
		t.Fatalf("intensity update failed: %+v", env)
	}

	resp = postJSON(t, base+"/api/user/reset", `{"userId":"brian"}`)
	if env := decodeEnvelope(t, resp); !env.Success || !strings.Contains(string(env.Data), `"reset":true`) {
		t.Fatalf("reset failed: %+v", env)
	}

	resp = postJSON(t, base+"/api/user/init", `not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body: status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRunNotFound(t *testing.T) {
	d := startDaemon(t)
	resp, err := http.Get("http://" + d.Address() + "/api/runs/does-not-exist")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHealthAndPreflight(t *testing.T) {
	d := startDaemon(t)
	base := "http://" + d.Address()

	req, err := http.NewRequest(http.MethodOptions, base+"/api/health", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(base + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	env := decodeEnvelope(t, resp)
	var health struct {
		Status   string `json:"status"`
		Running  bool   `json:"running"`
		Workflow struct {
			Running bool `json:"running"`
		} `json:"workflow"`
		Dependencies []struct {
			Name string `json:"name"`
		} `json:"dependencies"`
	}
	if err := json.Unmarshal(env.Data, &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if !health.Running || !health.Workflow.Running {
		t.Fatalf("unexpected health %+v", health)
	}
	if health.Status != "healthy" && health.Status != "degraded" {
		t.Fatalf("status = %q", health.Status)
	}
	if len(health.Dependencies) < 2 {
		t.Fatalf("expected dependency report, got %+v", health.Dependencies)
	}
}
