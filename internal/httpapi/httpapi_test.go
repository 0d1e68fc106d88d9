package httpapi

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/cs2kz-org/cs2kz-api/internal/accesskeys"
	"github.com/cs2kz-org/cs2kz-api/internal/auth"
	"github.com/cs2kz-org/cs2kz-api/internal/catalog"
	"github.com/cs2kz-org/cs2kz-api/internal/db"
	"github.com/cs2kz-org/cs2kz-api/internal/events"
	"github.com/cs2kz-org/cs2kz-api/internal/kz"
	"github.com/cs2kz-org/cs2kz-api/internal/monitor"
	"github.com/cs2kz-org/cs2kz-api/internal/points"
	"github.com/cs2kz-org/cs2kz-api/internal/protocol"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := db.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func newTestServer(t *testing.T, d *db.DB) (*httptest.Server, *catalog.Servers) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}

	servers := catalog.NewServers(d)
	pluginVersions := catalog.NewPluginVersions(d)
	users := catalog.NewUsers(d)
	bus := events.New()

	srv := New(Deps{
		Minter:   accesskeys.NewMinter(key, servers, pluginVersions),
		Sessions: auth.NewSessions(d),
		Servers:  servers,
		Users:    users,
		Monitor:  monitor.New(servers, bus, nil),
		ProtocolDeps: &protocol.Deps{
			Servers:           servers,
			Maps:              catalog.NewMaps(d),
			Players:           catalog.NewPlayers(d),
			PluginVersions:    pluginVersions,
			ServerSessions:    catalog.NewServerSessions(d),
			Submissions:       points.NewSubmissions(d),
			Daemon:            points.NewDaemon(d),
			Monitor:           monitor.New(servers, bus, nil),
			Events:            bus,
			HeartbeatInterval: time.Second,
		},
		SessionMaxAge: time.Hour,
		ListenAddr:    ":0",
	})

	ts := httptest.NewServer(srv.mux)
	t.Cleanup(ts.Close)
	return ts, servers
}

func TestHealthEndpoint(t *testing.T) {
	d := openTestDB(t)
	ts, _ := newTestServer(t, d)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestMintKeyRejectsUnknownAccessKey(t *testing.T) {
	d := openTestDB(t)
	ts, _ := newTestServer(t, d)

	unknown, _ := kz.NewAccessKey()
	body, _ := json.Marshal(mintKeyRequest{AccessKey: unknown.String(), PluginVersion: "1.0.0"})
	resp, err := http.Post(ts.URL+"/servers/key", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /servers/key: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content-type = %q, want application/problem+json", ct)
	}
}

func TestMintKeyAndDialWebSocket(t *testing.T) {
	d := openTestDB(t)
	ts, servers := newTestServer(t, d)
	ctx := context.Background()

	if _, err := d.Conn().ExecContext(ctx, `INSERT INTO users (id) VALUES (999999)`); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	server, err := servers.Create(ctx, "s1", "127.0.0.1", 27015, kz.GameCS2, kz.UserID(999999))
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	if _, err := d.Conn().ExecContext(ctx, `INSERT INTO plugin_versions (semver, git_revision) VALUES ('1.0.0', 'abc123')`); err != nil {
		t.Fatalf("insert plugin version: %v", err)
	}

	body, _ := json.Marshal(mintKeyRequest{AccessKey: server.AccessKey.String(), PluginVersion: "1.0.0"})
	resp, err := http.Post(ts.URL+"/servers/key", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /servers/key: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var minted mintKeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&minted); err != nil {
		t.Fatalf("decode mint response: %v", err)
	}
	if minted.Token == "" {
		t.Fatal("expected a non-empty bearer token")
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/servers/ws"
	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + minted.Token}},
	})
	if err != nil {
		t.Fatalf("dial /servers/ws: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	hello := map[string]any{
		"id": 1,
		"payload": map[string]any{
			"kind":           "hello",
			"plugin_version": "1.0.0",
		},
	}
	data, _ := json.Marshal(hello)
	if err := conn.Write(dialCtx, websocket.MessageText, data); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	_, raw, err := conn.Read(dialCtx)
	if err != nil {
		t.Fatalf("read hello ack: %v", err)
	}
	var ack struct {
		ID      uint64 `json:"id"`
		Payload struct {
			Kind string `json:"kind"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(raw, &ack); err != nil {
		t.Fatalf("unmarshal hello ack: %v", err)
	}
	if ack.ID != 1 || ack.Payload.Kind != "hello_ack" {
		t.Errorf("unexpected hello ack: %+v", ack)
	}
}

func TestServeWSRejectsMissingBearer(t *testing.T) {
	d := openTestDB(t)
	ts, _ := newTestServer(t, d)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/servers/ws"
	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err == nil {
		t.Fatal("expected dial without a bearer token to fail")
	}
	if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}
