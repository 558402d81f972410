package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/clawrank/internal/clawstr"
	"github.com/sandwichfarm/clawrank/internal/config"
	"github.com/sandwichfarm/clawrank/internal/entities"
	"github.com/sandwichfarm/clawrank/internal/feed"
	nostrclient "github.com/sandwichfarm/clawrank/internal/nostr"
	"github.com/sandwichfarm/clawrank/internal/ops"
	"github.com/sandwichfarm/clawrank/internal/storage"
)

type fixture struct {
	server *Server
	store  *storage.Storage
	older  *nostr.Event
	newer  *nostr.Event
	reply  *nostr.Event
}

func signed(t *testing.T, sk string, kind int, createdAt time.Time, tags nostr.Tags, content string) *nostr.Event {
	t.Helper()
	ev := &nostr.Event{
		Kind:      kind,
		CreatedAt: nostr.Timestamp(createdAt.Unix()),
		Tags:      tags,
		Content:   content,
	}
	if err := ev.Sign(sk); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	return ev
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := storage.New(0)
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(st.Close)

	alice := nostr.GeneratePrivateKey()
	bob := nostr.GeneratePrivateKey()
	now := time.Now()

	older := signed(t, alice, clawstr.KindComment, now.Add(-3*time.Hour), clawstr.PostTags("videogames"), "older post")
	newer := signed(t, bob, clawstr.KindComment, now.Add(-1*time.Hour), clawstr.PostTags("music"), "newer post")
	reply := signed(t, bob, clawstr.KindComment, now.Add(-2*time.Hour), clawstr.ReplyTags("videogames", older), "a reply")
	upvote := signed(t, bob, clawstr.KindReaction, now.Add(-10*time.Minute), nostr.Tags{{"e", older.ID}}, "+")

	for _, ev := range []*nostr.Event{older, newer, reply, upvote} {
		if err := st.StoreEvent(context.Background(), ev); err != nil {
			t.Fatalf("StoreEvent() error = %v", err)
		}
	}

	cfg := config.Default()
	cfg.Server.MetricsWaitMs = 5000
	service := feed.NewService(st, cfg, ops.Discard())

	return &fixture{
		server: New(&cfg.Server, service, ops.Discard(), WithRelay(st.Relay())),
		store:  st,
		older:  older,
		newer:  newer,
		reply:  reply,
	}
}

func get(t *testing.T, h http.Handler, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s: invalid JSON %q: %v", path, rec.Body.String(), err)
		}
	}
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := get(t, f.server.Handler(), "/healthz", nil)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("responses should carry a request id")
	}
}

func TestPopular(t *testing.T) {
	f := newFixture(t)

	var resp listingResponse[postJSON]
	rec := get(t, f.server.Handler(), "/api/popular", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	if resp.IsLoading || resp.IsMetricsLoading || resp.IsError {
		t.Errorf("flags = %+v, want a complete listing", resp)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("items = %d, want 2 top-level posts", len(resp.Items))
	}

	top := resp.Items[0]
	if top.ID != f.older.ID {
		t.Errorf("top post = %s, want the upvoted and replied post", top.Community)
	}
	if top.Metrics == nil || top.Metrics.Upvotes != 1 || top.Metrics.ReplyCount != 1 {
		t.Errorf("metrics = %+v", top.Metrics)
	}
	if top.Npub != entities.Npub(f.older.PubKey) || top.Community != "videogames" {
		t.Errorf("post = %+v", top)
	}
}

func TestBadParameters(t *testing.T) {
	f := newFixture(t)
	h := f.server.Handler()

	for _, path := range []string{
		"/api/popular?limit=0",
		"/api/popular?limit=abc",
		"/api/popular?range=year",
		"/api/agents?show_all=maybe",
		"/api/recent?cursor=-5",
		"/api/posts/not-an-id",
		"/api/authors/npub1nope/posts",
	} {
		if rec := get(t, h, path, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestRecentPagination(t *testing.T) {
	f := newFixture(t)

	var resp listingResponse[postJSON]
	// the first page holds the newer post and the reply, which is not a top-level item
	rec := get(t, f.server.Handler(), "/api/recent?limit=2", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	if len(resp.Items) != 1 || resp.Items[0].ID != f.newer.ID {
		t.Fatalf("items = %+v, want the newest post", resp.Items)
	}
	if resp.HasNextPage == nil || !*resp.HasNextPage {
		t.Fatal("a full page should report more pages")
	}
	want := int64(f.reply.CreatedAt) - 1
	if resp.NextCursor == nil || *resp.NextCursor != want {
		t.Fatalf("next_cursor = %v, want %d", resp.NextCursor, want)
	}

	var next listingResponse[postJSON]
	get(t, f.server.Handler(), "/api/recent?limit=2&cursor="+itoa(want), &next)
	if len(next.Items) != 1 || next.Items[0].ID != f.older.ID {
		t.Errorf("second page = %+v, want the older post", next.Items)
	}
	if next.HasNextPage == nil || !*next.HasNextPage || next.NextCursor == nil {
		t.Errorf("a non-empty page keeps the walk going")
	}
}

func TestPostAndThread(t *testing.T) {
	f := newFixture(t)
	h := f.server.Handler()

	var post listingResponse[postJSON]
	rec := get(t, h, "/api/posts/"+entities.Note(f.older.ID), &post)
	if rec.Code != http.StatusOK || len(post.Items) != 1 || post.Items[0].ID != f.older.ID {
		t.Fatalf("post: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	missing := "0000000000000000000000000000000000000000000000000000000000000001"
	if rec := get(t, h, "/api/posts/"+missing, nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing post status = %d, want 404", rec.Code)
	}

	var thread threadJSON
	rec = get(t, h, "/api/posts/"+f.older.ID+"/thread", &thread)
	if rec.Code != http.StatusOK {
		t.Fatalf("thread: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if thread.Size != 2 || len(thread.Root.Replies) != 1 || thread.Root.Replies[0].ID != f.reply.ID {
		t.Errorf("thread = %+v", thread)
	}
	if thread.Root.Upvotes != 1 {
		t.Errorf("root upvotes = %d, want 1", thread.Root.Upvotes)
	}
}

func TestCommunitiesAndAuthors(t *testing.T) {
	f := newFixture(t)
	h := f.server.Handler()

	var communities listingResponse[map[string]any]
	get(t, h, "/api/communities", &communities)
	if len(communities.Items) != 2 {
		t.Errorf("communities = %+v", communities.Items)
	}

	var music listingResponse[postJSON]
	get(t, h, "/api/communities/music", &music)
	if len(music.Items) != 1 || music.Items[0].ID != f.newer.ID {
		t.Errorf("music = %+v", music.Items)
	}

	var byAuthor listingResponse[postJSON]
	get(t, h, "/api/authors/"+entities.Npub(f.newer.PubKey)+"/posts", &byAuthor)
	for _, item := range byAuthor.Items {
		if item.Pubkey != f.newer.PubKey {
			t.Errorf("author listing contains %s", item.Pubkey)
		}
	}
	if len(byAuthor.Items) == 0 {
		t.Error("author listing is empty")
	}

	var agents listingResponse[authorJSON]
	get(t, h, "/api/agents", &agents)
	if len(agents.Items) != 2 {
		t.Errorf("agents = %+v", agents.Items)
	}
}

func TestUpstreamFailure(t *testing.T) {
	down := nostrclient.QuerierFunc(func(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
		return nil, errors.New("relay down")
	})
	cfg := config.Default()
	s := New(&cfg.Server, feed.NewService(down, cfg, ops.Discard()), ops.Discard())

	for _, path := range []string{"/api/popular", "/api/recent", "/api/communities", "/api/zaps/recent"} {
		var resp listingResponse[map[string]any]
		rec := get(t, s.Handler(), path, &resp)
		if rec.Code != http.StatusBadGateway {
			t.Errorf("%s: status = %d, want 502", path, rec.Code)
		}
		if !resp.IsError || resp.Error == "" {
			t.Errorf("%s: body = %s", path, rec.Body.String())
		}
	}
}

func TestRecovery(t *testing.T) {
	f := newFixture(t)
	h := f.server.withLogging(f.server.withRecovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rec := get(t, h, "/anything", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestRelayInformation(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/relay", nil)
	req.Header.Set("Accept", "application/nostr+json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	var info struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("invalid relay information: %s", rec.Body.String())
	}
	if info.Name != "clawrank snapshot" {
		t.Errorf("name = %q", info.Name)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	diag := ops.NewDiagnosticsCollector("test", "none")
	diag.AddCheck("source", func(ctx context.Context) (map[string]any, error) {
		n, err := f.store.Count(ctx)
		return map[string]any{"events": n}, err
	})
	cfg := config.Default().Server
	s := New(&cfg, f.server.service, ops.Discard(), WithDiagnostics(diag))

	var report ops.Diagnostics
	rec := get(t, s.Handler(), "/api/status", &report)
	if rec.Code != http.StatusOK || !report.Healthy() {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if report.Checks[0].Fields["events"] != float64(4) {
		t.Errorf("fields = %v", report.Checks[0].Fields)
	}

	diag.AddCheck("cache", func(ctx context.Context) (map[string]any, error) {
		return nil, errors.New("redis down")
	})
	if rec := get(t, s.Handler(), "/api/status", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d, want 503", rec.Code)
	}

	if rec := get(t, f.server.Handler(), "/api/status", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status without diagnostics = %d, want 404", rec.Code)
	}
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	cfg := config.Default().Server
	cfg.Bind = "127.0.0.1"
	cfg.Port = 0
	s := New(&cfg, f.server.service, ops.Discard())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
