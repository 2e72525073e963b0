package main

import (
	"fmt"
	"net/http"

	"cubetonic.app/internal/client"
	"cubetonic.app/internal/mesh"
	"cubetonic.app/internal/persistence/indexdb"
)

type clientMetrics struct {
	sess *client.Session
	rec  *mesh.Reconciler
	up   *mesh.MemoryUploader
	// idx is nil when the media index is disabled.
	idx *indexdb.SQLiteIndex
}

func newMetricsMux(m *clientMetrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", m.serve)
	return mux
}

func (m *clientMetrics) serve(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	st := m.sess.Machine().Stats()
	in, out, rejected := m.sess.FrameCounts()

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP cubetonic_client_state Connection phase (0=connected .. 3=ready).\n")
	fmt.Fprintf(rw, "# TYPE cubetonic_client_state gauge\n")
	fmt.Fprintf(rw, "cubetonic_client_state{state=%q} %d\n", st.State.String(), int(st.State))

	fmt.Fprintf(rw, "# HELP cubetonic_client_frames_total Frames by direction.\n")
	fmt.Fprintf(rw, "# TYPE cubetonic_client_frames_total counter\n")
	fmt.Fprintf(rw, "cubetonic_client_frames_total{dir=%q} %d\n", "in", in)
	fmt.Fprintf(rw, "cubetonic_client_frames_total{dir=%q} %d\n", "out", out)
	fmt.Fprintf(rw, "cubetonic_client_frames_total{dir=%q} %d\n", "rejected", rejected)

	fmt.Fprintf(rw, "# HELP cubetonic_client_ignored_total Messages dropped as malformed or out of phase.\n")
	fmt.Fprintf(rw, "# TYPE cubetonic_client_ignored_total counter\n")
	fmt.Fprintf(rw, "cubetonic_client_ignored_total %d\n", st.Ignored)

	fmt.Fprintf(rw, "# HELP cubetonic_world_blocks Blocks held in the world store.\n")
	fmt.Fprintf(rw, "# TYPE cubetonic_world_blocks gauge\n")
	fmt.Fprintf(rw, "cubetonic_world_blocks %d\n", st.Blocks)

	fmt.Fprintf(rw, "# HELP cubetonic_world_block_updates_total BLOCK_DATA messages applied.\n")
	fmt.Fprintf(rw, "# TYPE cubetonic_world_block_updates_total counter\n")
	fmt.Fprintf(rw, "cubetonic_world_block_updates_total %d\n", st.BlockUpdates)

	fmt.Fprintf(rw, "# HELP cubetonic_mesh_jobs_total Mesh jobs by outcome.\n")
	fmt.Fprintf(rw, "# TYPE cubetonic_mesh_jobs_total counter\n")
	fmt.Fprintf(rw, "cubetonic_mesh_jobs_total{outcome=%q} %d\n", "submitted", st.Pool.Submitted)
	fmt.Fprintf(rw, "cubetonic_mesh_jobs_total{outcome=%q} %d\n", "fast_empty", st.Pool.FastEmpty)
	fmt.Fprintf(rw, "cubetonic_mesh_jobs_total{outcome=%q} %d\n", "late_empty", st.Pool.LateEmpty)
	fmt.Fprintf(rw, "cubetonic_mesh_jobs_total{outcome=%q} %d\n", "uploaded", st.Pool.Uploaded)
	fmt.Fprintf(rw, "cubetonic_mesh_jobs_total{outcome=%q} %d\n", "failed", st.Pool.Failed)

	fmt.Fprintf(rw, "# HELP cubetonic_mesh_queue_depth Jobs waiting for a worker.\n")
	fmt.Fprintf(rw, "# TYPE cubetonic_mesh_queue_depth gauge\n")
	fmt.Fprintf(rw, "cubetonic_mesh_queue_depth %d\n", st.Pool.Queued)

	accepted, stale := m.rec.Counts()
	fmt.Fprintf(rw, "# HELP cubetonic_mesh_results_total Results seen by the reconciler.\n")
	fmt.Fprintf(rw, "# TYPE cubetonic_mesh_results_total counter\n")
	fmt.Fprintf(rw, "cubetonic_mesh_results_total{result=%q} %d\n", "accepted", accepted)
	fmt.Fprintf(rw, "cubetonic_mesh_results_total{result=%q} %d\n", "stale", stale)

	fmt.Fprintf(rw, "# HELP cubetonic_mesh_table_blocks Blocks with a current mesh.\n")
	fmt.Fprintf(rw, "# TYPE cubetonic_mesh_table_blocks gauge\n")
	fmt.Fprintf(rw, "cubetonic_mesh_table_blocks %d\n", m.rec.Table().Len())

	fmt.Fprintf(rw, "# HELP cubetonic_mesh_triangles Triangles across the mesh table.\n")
	fmt.Fprintf(rw, "# TYPE cubetonic_mesh_triangles gauge\n")
	fmt.Fprintf(rw, "cubetonic_mesh_triangles %d\n", m.rec.Table().Triangles())

	if m.up != nil {
		n, bytes := m.up.Live()
		fmt.Fprintf(rw, "# HELP cubetonic_gpu_buffers Live uploaded buffers.\n")
		fmt.Fprintf(rw, "# TYPE cubetonic_gpu_buffers gauge\n")
		fmt.Fprintf(rw, "cubetonic_gpu_buffers %d\n", n)
		fmt.Fprintf(rw, "# HELP cubetonic_gpu_buffer_bytes Bytes held by live buffers.\n")
		fmt.Fprintf(rw, "# TYPE cubetonic_gpu_buffer_bytes gauge\n")
		fmt.Fprintf(rw, "cubetonic_gpu_buffer_bytes %d\n", bytes)
	}

	if m.idx != nil {
		is := m.idx.Stats()
		fmt.Fprintf(rw, "# HELP cubetonic_media_index_queue_depth Pending media index writes.\n")
		fmt.Fprintf(rw, "# TYPE cubetonic_media_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "cubetonic_media_index_queue_depth %d\n", is.QueueDepth)
		fmt.Fprintf(rw, "# HELP cubetonic_media_index_dropped_total Media index writes dropped.\n")
		fmt.Fprintf(rw, "# TYPE cubetonic_media_index_dropped_total counter\n")
		fmt.Fprintf(rw, "cubetonic_media_index_dropped_total %d\n", is.DropTotal)
		fmt.Fprintf(rw, "# HELP cubetonic_media_index_write_errors_total Failed media index writes.\n")
		fmt.Fprintf(rw, "# TYPE cubetonic_media_index_write_errors_total counter\n")
		fmt.Fprintf(rw, "cubetonic_media_index_write_errors_total %d\n", is.WriteErrors)
	}
}
