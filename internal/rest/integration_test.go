package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"schemaregistry/internal/cache"
	"schemaregistry/internal/engine"
	"schemaregistry/internal/filestore/memory"
	"schemaregistry/internal/notify"
	"schemaregistry/internal/rest"
	"schemaregistry/internal/schema/formats/avro"
	jsonfmt "schemaregistry/internal/schema/formats/json"
	"schemaregistry/internal/schema/formats/protobuf"
	"schemaregistry/internal/schema/types"
	storagememory "schemaregistry/internal/storage/memory"
)

// startEmbeddedNATS mirrors the teacher's own test-mode embedded server
// setup, used here only to give the registry's schema-registered
// notifications somewhere real to publish to during this end-to-end test.
func startEmbeddedNATS(t *testing.T) *nats.Conn {
	t.Helper()
	opts := &natsserver.Options{
		Port:     -1,
		StoreDir: t.TempDir(),
	}
	ns, err := natsserver.NewServer(opts)
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS server failed to start")
	}
	t.Cleanup(ns.Shutdown)

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

// TestRegisterSchemaEndToEnd drives the HTTP surface with an in-process
// storage backend, asserting both the HTTP response shape and that a
// schema-version-registered event is published over NATS.
func TestRegisterSchemaEndToEnd(t *testing.T) {
	nc := startEmbeddedNATS(t)

	const subject = "schemaregistry.events.version-registered"
	events := make(chan notify.SchemaVersionRegistered, 1)
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		var ev notify.SchemaVersionRegistered
		if err := json.Unmarshal(msg.Data, &ev); err == nil {
			events <- ev
		}
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, nc.Flush())

	store := storagememory.New()
	files := memory.New()
	providers := []types.Provider{avro.New(), jsonfmt.New(), protobuf.New()}
	versionCache := cache.New(100, time.Minute)
	log := zap.NewNop()

	eng := engine.New(store, providers, versionCache, log).WithNotifier(notify.NewNatsNotifier(nc, subject))
	serdes := engine.NewSerDesManager(store, files)

	server := rest.New(eng, serdes, log)
	ts := httptest.NewServer(server.SetupRouter())
	defer ts.Close()

	body, err := json.Marshal(rest.SchemaRequest{
		Schema:        `{"type":"string"}`,
		SchemaType:    string(types.JSON),
		Compatibility: string(types.Backward),
	})
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/schemas/greeting/versions", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out rest.SchemaResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, 1, out.Version)

	select {
	case ev := <-events:
		require.Equal(t, "greeting", ev.SchemaName)
		require.Equal(t, 1, ev.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive schema-version-registered event")
	}

	// A second, textually identical submission is a dedup, so no new event
	// should follow it — assert the channel stays empty briefly.
	resp2, err := http.Post(ts.URL+"/schemas/greeting/versions", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var out2 rest.SchemaResponse
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&out2))
	require.Equal(t, 1, out2.Version)

	select {
	case ev := <-events:
		t.Fatalf("unexpected duplicate event for dedup submission: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}
