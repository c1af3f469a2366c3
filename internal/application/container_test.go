package application

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	domainerrors "github.com/jbctechsolutions/scribesync/internal/domain/errors"
	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/config"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/crypto"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/testutil"
)

type uploadServer struct {
	*httptest.Server
	mu      sync.Mutex
	paths   []string
	authz   []string
	failIDs map[string]bool
}

func newUploadServer(t *testing.T) *uploadServer {
	t.Helper()
	s := &uploadServer{failIDs: make(map[string]bool)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = io.Copy(io.Discard, r.Body)

		s.mu.Lock()
		s.paths = append(s.paths, r.URL.Path)
		s.authz = append(s.authz, r.Header.Get("Authorization"))
		fail := s.failIDs[r.Header.Get("Idempotency-Key")]
		s.mu.Unlock()

		if fail {
			http.Error(w, "rejected", http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(s.Close)
	return s
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "outbox.db")
	cfg.Remote.BaseURL = baseURL
	cfg.Network.AssumeOnline = true
	cfg.Logging.Level = "error"
	for name, q := range cfg.Queues {
		q.RetryDelay = 1
		cfg.Queues[name] = q
	}
	return cfg
}

func newTestContainer(t *testing.T, cfg *config.Config, opts Options) *Container {
	t.Helper()
	if opts.LogOutput == nil {
		opts.LogOutput = io.Discard
	}
	c, err := NewContainer(cfg, opts)
	if err != nil {
		t.Fatalf("NewContainer() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewContainer(t *testing.T) {
	server := newUploadServer(t)
	c := newTestContainer(t, testConfig(t, server.URL), Options{})

	if c.Config() == nil || c.Logger() == nil || c.DB() == nil {
		t.Fatal("core dependencies should be set")
	}
	if names := c.QueueNames(); len(names) != 2 {
		t.Errorf("QueueNames() = %v", names)
	}
	if len(c.Coordinator().Engines()) != 2 {
		t.Errorf("coordinator has %d engines, want 2", len(c.Coordinator().Engines()))
	}
	if c.Oracle().Status() != outbox.StatusOnline {
		t.Errorf("assume_online oracle status = %s", c.Oracle().Status())
	}
	if c.Spool() != nil {
		t.Error("spool should be nil when disabled")
	}
	_, err := c.Queue("photos")
	testutil.AssertErrorIs(t, err, domainerrors.ErrQueueNotFound)
	_, err = c.Engine("photos")
	testutil.AssertErrorIs(t, err, domainerrors.ErrQueueNotFound)
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Remote.BaseURL = ""
	if _, err := NewContainer(cfg, Options{LogOutput: io.Discard}); domainerrors.CodeOf(err) != domainerrors.CodeConfiguration {
		t.Errorf("NewContainer() error = %v, want configuration error", err)
	}
}

func TestContainer_SyncDeliversAndRecordsHistory(t *testing.T) {
	ctx := context.Background()
	server := newUploadServer(t)
	server.failIDs["bad"] = true
	c := newTestContainer(t, testConfig(t, server.URL), Options{})

	recordings, err := c.Queue(config.QueueRecordings)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, recordings.Enqueue(ctx, testutil.NewUpload(t, "good", "recordings", "a.webm", "aaa")))
	testutil.AssertNoError(t, recordings.Enqueue(ctx, testutil.NewUpload(t, "bad", "recordings", "b.webm", "bbb")))

	engine, err := c.Engine(config.QueueRecordings)
	testutil.AssertNoError(t, err)

	p, err := engine.Sync(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, p.Total, 2)
	testutil.AssertEqual(t, p.Completed, 1)

	remaining, _ := recordings.ListPending(ctx)
	if len(remaining) != 1 || remaining[0].ID != "bad" || remaining[0].RetryCount != 1 {
		t.Fatalf("remaining = %v", remaining)
	}
	if remaining[0].LastError != "HTTP 422: rejected" {
		t.Errorf("LastError = %q", remaining[0].LastError)
	}

	server.mu.Lock()
	paths := append([]string(nil), server.paths...)
	server.mu.Unlock()
	for _, p := range paths {
		if p != "/api/recordings" {
			t.Errorf("upload path = %s", p)
		}
	}

	history, err := c.History().Recent(ctx, config.QueueRecordings, 0)
	testutil.AssertNoError(t, err)
	if len(history) != 1 || history[0].Completed != 1 || history[0].Outcome != outbox.EventComplete {
		t.Errorf("history = %+v", history)
	}
}

func TestContainer_SyncAllReportsEveryQueue(t *testing.T) {
	server := newUploadServer(t)
	c := newTestContainer(t, testConfig(t, server.URL), Options{})

	docs, _ := c.Queue(config.QueueDocuments)
	testutil.AssertNoError(t, docs.Enqueue(context.Background(), testutil.NewUpload(t, "d1", "documents", "r.pdf", "%PDF")))

	reports := c.Coordinator().SyncAll(context.Background())
	if len(reports) != 2 {
		t.Fatalf("SyncAll() returned %d reports", len(reports))
	}
	for _, r := range reports {
		if r.Err != nil {
			t.Errorf("%s: %v", r.Queue, r.Err)
		}
		if r.Queue == config.QueueDocuments && r.Progress.Completed != 1 {
			t.Errorf("documents progress = %+v", r.Progress)
		}
	}
}

func TestContainer_OfflineSkipsDelivery(t *testing.T) {
	ctx := context.Background()
	server := newUploadServer(t)
	c := newTestContainer(t, testConfig(t, server.URL), Options{Offline: true})

	recordings, _ := c.Queue(config.QueueRecordings)
	testutil.AssertNoError(t, recordings.Enqueue(ctx, testutil.NewUpload(t, "x", "recordings", "x.webm", "x")))

	engine, _ := c.Engine(config.QueueRecordings)
	p, err := engine.Sync(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, p, outbox.Progress{})

	if n, _ := recordings.Count(ctx); n != 1 {
		t.Errorf("queue count = %d, want 1", n)
	}
	if c.CheckConnectivity(ctx) != outbox.StatusOffline {
		t.Error("forced offline container should report offline")
	}
}

func TestContainer_DecryptsToken(t *testing.T) {
	ctx := context.Background()
	server := newUploadServer(t)
	configDir := t.TempDir()

	enc, err := crypto.NewEncryptor(configDir)
	testutil.AssertNoError(t, err)
	token, err := enc.Encrypt("s3cret")
	testutil.AssertNoError(t, err)

	cfg := testConfig(t, server.URL)
	cfg.Remote.TokenEncrypted = token
	c := newTestContainer(t, cfg, Options{ConfigDir: configDir})

	docs, _ := c.Queue(config.QueueDocuments)
	testutil.AssertNoError(t, docs.Enqueue(ctx, testutil.NewUpload(t, "d1", "documents", "r.pdf", "%PDF")))
	engine, _ := c.Engine(config.QueueDocuments)
	_, err = engine.Sync(ctx)
	testutil.AssertNoError(t, err)

	server.mu.Lock()
	defer server.mu.Unlock()
	if len(server.authz) != 1 || server.authz[0] != "Bearer s3cret" {
		t.Errorf("Authorization headers = %v", server.authz)
	}
}

func TestContainer_BadTokenFails(t *testing.T) {
	server := newUploadServer(t)
	cfg := testConfig(t, server.URL)
	cfg.Remote.TokenEncrypted = "bm90IGEgcmVhbCB0b2tlbiBhdCBhbGw="

	_, err := NewContainer(cfg, Options{ConfigDir: t.TempDir(), LogOutput: io.Discard})
	if domainerrors.CodeOf(err) != domainerrors.CodeConfiguration {
		t.Errorf("NewContainer() error = %v, want configuration error", err)
	}
}

func TestContainer_ProbeOracleAndStart(t *testing.T) {
	server := newUploadServer(t)
	cfg := testConfig(t, server.URL)
	cfg.Network.AssumeOnline = false
	cfg.Spool.Enabled = true
	cfg.Spool.Directory = t.TempDir()

	c := newTestContainer(t, cfg, Options{})
	if c.Oracle().Status() != outbox.StatusOffline {
		t.Errorf("probe oracle should start offline, got %s", c.Oracle().Status())
	}
	if c.Spool() == nil {
		t.Fatal("spool should be set when enabled")
	}

	testutil.AssertNoError(t, c.Start(context.Background()))
	if !c.Coordinator().Running() {
		t.Error("coordinator should be running after Start")
	}
	if c.Oracle().Status() != outbox.StatusOnline {
		t.Errorf("status after Start = %s, want online", c.Oracle().Status())
	}

	c.Stop()
	if c.Coordinator().Running() {
		t.Error("coordinator should be stopped")
	}
	testutil.AssertNoError(t, c.Close())
	testutil.AssertNoError(t, c.Close())
}
