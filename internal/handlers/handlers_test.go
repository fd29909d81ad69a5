package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpgscribe/rpgscribe/internal/queue"
	"github.com/rpgscribe/rpgscribe/internal/store"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakePool struct {
	jobs []*queue.Job
}

func (f *fakePool) Enqueue(job *queue.Job) { f.jobs = append(f.jobs, job) }

// fakeSessions serves canned records keyed by session id.
type fakeSessions struct {
	records map[string]*store.SessionRecord
	listErr error
}

func (f *fakeSessions) Get(_ context.Context, _, sessionID string) (*store.SessionRecord, error) {
	rec, ok := f.records[sessionID]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	return rec, nil
}

func (f *fakeSessions) Update(context.Context, string, string, store.Fields) error {
	return errors.New("not implemented")
}

func (f *fakeSessions) CompletedSessions(context.Context, string, int) ([]store.SessionRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []store.SessionRecord
	for _, rec := range f.records {
		if rec.Stage == "completed" {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeSessions) NextPodcastVersion(context.Context, string, string) (int, error) {
	return 0, errors.New("not implemented")
}

func multipartBody(t *testing.T, filename string, fileBytes []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(fileBytes)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func newProcessApp(t *testing.T, pool Enqueuer) *fiber.App {
	t.Helper()
	app := fiber.New()
	h := NewProcessHandler(pool, t.TempDir(), 1, testLogger())
	app.Post("/campaigns/:campaignId/sessions/:sessionId/process", h.Handle)
	return app
}

func TestProcessAcceptsUpload(t *testing.T) {
	pool := &fakePool{}
	app := newProcessApp(t, pool)

	body, contentType := multipartBody(t, "session.m4a", []byte("audio"), map[string]string{
		"glossary":    `{"characters":["Mira"],"places":["Ember Gate"]}`,
		"corrections": "Mira is spelled with one r",
	})
	req := httptest.NewRequest(http.MethodPost, "/campaigns/camp-1/sessions/sess-1/process", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	out := decodeBody(t, resp)
	assert.Equal(t, "queued", out["status"])
	assert.NotEmpty(t, out["jobId"])

	require.Len(t, pool.jobs, 1)
	job := pool.jobs[0]
	assert.Equal(t, "camp-1", job.Request.CampaignID)
	assert.Equal(t, "sess-1", job.Request.SessionID)
	assert.Equal(t, []string{"Mira"}, job.Request.Glossary.Characters)
	assert.Equal(t, "Mira is spelled with one r", job.Request.UserCorrections)
	assert.FileExists(t, job.Request.SourcePath)
}

func TestProcessRejectsMissingFile(t *testing.T) {
	pool := &fakePool{}
	app := newProcessApp(t, pool)

	body, contentType := multipartBody(t, "", nil, map[string]string{"corrections": "x"})
	req := httptest.NewRequest(http.MethodPost, "/campaigns/c/sessions/s/process", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ERR_NO_FILE", decodeBody(t, resp)["code"])
	assert.Empty(t, pool.jobs)
}

func TestProcessRejectsBadFormat(t *testing.T) {
	pool := &fakePool{}
	app := newProcessApp(t, pool)

	body, contentType := multipartBody(t, "notes.txt", []byte("text"), nil)
	req := httptest.NewRequest(http.MethodPost, "/campaigns/c/sessions/s/process", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ERR_INVALID_FORMAT", decodeBody(t, resp)["code"])
}

func TestProcessRejectsOversizedFile(t *testing.T) {
	pool := &fakePool{}
	app := newProcessApp(t, pool) // 1MB limit

	body, contentType := multipartBody(t, "big.wav", bytes.Repeat([]byte("a"), 2*1024*1024), nil)
	req := httptest.NewRequest(http.MethodPost, "/campaigns/c/sessions/s/process", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ERR_FILE_TOO_LARGE", decodeBody(t, resp)["code"])
}

func TestProcessRejectsMalformedGlossary(t *testing.T) {
	pool := &fakePool{}
	app := newProcessApp(t, pool)

	body, contentType := multipartBody(t, "session.m4a", []byte("audio"), map[string]string{
		"glossary": "not-json",
	})
	req := httptest.NewRequest(http.MethodPost, "/campaigns/c/sessions/s/process", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ERR_INVALID_GLOSSARY", decodeBody(t, resp)["code"])
}

func newRegenerateApp(t *testing.T, pool Enqueuer, sessions store.SessionStore) *fiber.App {
	t.Helper()
	app := fiber.New()
	h := NewRegenerateHandler(pool, sessions, 100, testLogger())
	app.Post("/campaigns/:campaignId/sessions/:sessionId/podcast", h.Handle)
	return app
}

func jsonRequest(method, target string, payload any) *http.Request {
	raw, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRegenerateEnqueuesPrebuiltScript(t *testing.T) {
	pool := &fakePool{}
	sessions := &fakeSessions{records: map[string]*store.SessionRecord{
		"sess-1": {CampaignID: "camp-1", SessionID: "sess-1", Stage: "completed"},
	}}
	app := newRegenerateApp(t, pool, sessions)

	req := jsonRequest(http.MethodPost, "/campaigns/camp-1/sessions/sess-1/podcast", map[string]any{
		"segments": []map[string]string{
			{"speaker": "HOST", "text": "Welcome back."},
			{"speaker": "GUEST", "text": "Quite a session."},
		},
	})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	require.Len(t, pool.jobs, 1)
	script := pool.jobs[0].Request.PrebuiltScript
	require.NotNil(t, script)
	require.Len(t, script.Segments, 2)
	assert.Equal(t, "HOST", script.Segments[0].Speaker)
	assert.Empty(t, pool.jobs[0].Request.SourcePath)
}

func TestRegenerateUnknownSession(t *testing.T) {
	app := newRegenerateApp(t, &fakePool{}, &fakeSessions{records: map[string]*store.SessionRecord{}})

	req := jsonRequest(http.MethodPost, "/campaigns/c/sessions/absent/podcast", map[string]any{
		"segments": []map[string]string{{"speaker": "HOST", "text": "x"}},
	})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestRegenerateRejectsUnknownSpeaker(t *testing.T) {
	sessions := &fakeSessions{records: map[string]*store.SessionRecord{
		"sess-1": {SessionID: "sess-1"},
	}}
	pool := &fakePool{}
	app := newRegenerateApp(t, pool, sessions)

	req := jsonRequest(http.MethodPost, "/campaigns/c/sessions/sess-1/podcast", map[string]any{
		"segments": []map[string]string{{"speaker": "NARRATOR", "text": "x"}},
	})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ERR_VALIDATION", decodeBody(t, resp)["code"])
	assert.Empty(t, pool.jobs)
}

func TestRegenerateRejectsOverBudgetScript(t *testing.T) {
	sessions := &fakeSessions{records: map[string]*store.SessionRecord{
		"sess-1": {SessionID: "sess-1"},
	}}
	pool := &fakePool{}
	app := newRegenerateApp(t, pool, sessions) // 100-char budget

	req := jsonRequest(http.MethodPost, "/campaigns/c/sessions/sess-1/podcast", map[string]any{
		"segments": []map[string]string{{"speaker": "HOST", "text": strings.Repeat("x", 101)}},
	})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ERR_SCRIPT_TOO_LONG", decodeBody(t, resp)["code"])
	assert.Empty(t, pool.jobs)
}

func TestRegenerateAcceptsScriptAtBudget(t *testing.T) {
	sessions := &fakeSessions{records: map[string]*store.SessionRecord{
		"sess-1": {SessionID: "sess-1"},
	}}
	pool := &fakePool{}
	app := newRegenerateApp(t, pool, sessions)

	req := jsonRequest(http.MethodPost, "/campaigns/c/sessions/sess-1/podcast", map[string]any{
		"segments": []map[string]string{{"speaker": "HOST", "text": strings.Repeat("x", 100)}},
	})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	assert.Len(t, pool.jobs, 1)
}

func newSessionApp(t *testing.T, sessions store.SessionStore) *fiber.App {
	t.Helper()
	app := fiber.New()
	h := NewSessionHandler(sessions, testLogger())
	app.Get("/campaigns/:campaignId/sessions", h.List)
	app.Get("/campaigns/:campaignId/sessions/:sessionId/progress", h.Progress)
	app.Get("/campaigns/:campaignId/sessions/:sessionId/transcript", h.Transcript)
	app.Get("/campaigns/:campaignId/sessions/:sessionId/story", h.Story)
	app.Get("/campaigns/:campaignId/sessions/:sessionId/script", h.Script)
	app.Get("/campaigns/:campaignId/sessions/:sessionId/podcast", h.Podcast)
	return app
}

func TestProgressSnapshot(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sessions := &fakeSessions{records: map[string]*store.SessionRecord{
		"sess-1": {
			CampaignID:      "camp-1",
			SessionID:       "sess-1",
			Stage:           "transcribing",
			ProgressPercent: 25,
			Message:         "Transcribed segment 1 of 2",
			StartedAt:       started,
		},
	}}
	app := newSessionApp(t, sessions)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/campaigns/camp-1/sessions/sess-1/progress", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decodeBody(t, resp)
	assert.Equal(t, "transcribing", out["stage"])
	assert.Equal(t, float64(25), out["progressPercent"])
	assert.Equal(t, "Transcribed segment 1 of 2", out["message"])
}

func TestProgressUnknownSession(t *testing.T) {
	app := newSessionApp(t, &fakeSessions{records: map[string]*store.SessionRecord{}})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/campaigns/c/sessions/absent/progress", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestTranscriptNotReady(t *testing.T) {
	sessions := &fakeSessions{records: map[string]*store.SessionRecord{
		"sess-1": {SessionID: "sess-1", Stage: "transcribing"},
	}}
	app := newSessionApp(t, sessions)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/campaigns/c/sessions/sess-1/transcript", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "ERR_NOT_READY", decodeBody(t, resp)["code"])
}

func TestTranscriptServed(t *testing.T) {
	sessions := &fakeSessions{records: map[string]*store.SessionRecord{
		"sess-1": {
			SessionID:      "sess-1",
			TranscriptJSON: `[{"timeSeconds":65,"text":"I cast fireball.","speaker":"Mira"}]`,
			TranscriptText: "[01:05] Mira: I cast fireball.",
		},
	}}
	app := newSessionApp(t, sessions)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/campaigns/c/sessions/sess-1/transcript", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decodeBody(t, resp)
	assert.Equal(t, "[01:05] Mira: I cast fireball.", out["text"])
	utterances := out["utterances"].([]any)
	require.Len(t, utterances, 1)
}

func TestPodcastServed(t *testing.T) {
	sessions := &fakeSessions{records: map[string]*store.SessionRecord{
		"sess-1": {SessionID: "sess-1", AudioPath: "https://files.local/x.mp3", PodcastVersion: 3},
	}}
	app := newSessionApp(t, sessions)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/campaigns/c/sessions/sess-1/podcast", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decodeBody(t, resp)
	assert.Equal(t, "https://files.local/x.mp3", out["url"])
	assert.Equal(t, float64(3), out["version"])
}

func TestListCompletedSessions(t *testing.T) {
	sessions := &fakeSessions{records: map[string]*store.SessionRecord{
		"sess-1": {SessionID: "sess-1", Stage: "completed"},
		"sess-2": {SessionID: "sess-2", Stage: "transcribing"},
	}}
	app := newSessionApp(t, sessions)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/campaigns/c/sessions", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decodeBody(t, resp)
	list := out["sessions"].([]any)
	require.Len(t, list, 1)
}
