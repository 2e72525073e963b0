package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"cubetonic.app/internal/client"
	"cubetonic.app/internal/mesh"
	"cubetonic.app/internal/persistence/indexdb"
	"cubetonic.app/internal/world"
)

type idleTransport struct{}

func (idleTransport) Read() ([]byte, error) { select {} }
func (idleTransport) Write([]byte) error    { return nil }
func (idleTransport) Close() error          { return nil }

func TestMetricsHandler(t *testing.T) {
	up := mesh.NewMemoryUploader()
	rec := mesh.NewReconciler(up, nil, false)
	buf, err := up.Upload(make([]byte, mesh.VertexSize*4), make([]byte, 24))
	if err != nil {
		t.Fatal(err)
	}
	rec.Accept(mesh.Result{Pos: world.BlockPos{X: 1}, Triangles: 2, Buffers: &buf, Stamp: 1})
	rec.Accept(mesh.Result{Pos: world.BlockPos{X: 1}, Stamp: 1})

	idx, err := indexdb.OpenSQLite(filepath.Join(t.TempDir(), "media.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	sess := client.NewSession(idleTransport{}, client.MachineConfig{Username: "tester"}, client.Deps{}, nil, client.SessionConfig{})
	mux := newMetricsMux(&clientMetrics{sess: sess, rec: rec, up: up, idx: idx})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("metrics status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{
		`cubetonic_client_state{state="CONNECTED"} 0`,
		"cubetonic_mesh_table_blocks 1\n",
		"cubetonic_mesh_triangles 2\n",
		`cubetonic_mesh_results_total{result="stale"} 1`,
		"cubetonic_gpu_buffers 1\n",
		"cubetonic_media_index_dropped_total 0\n",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 || rr.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rr.Code, rr.Body.String())
	}
}
