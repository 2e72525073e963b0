package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"cubetonic.app/internal/client"
	"cubetonic.app/internal/media"
	"cubetonic.app/internal/mesh"
	"cubetonic.app/internal/nodedef"
	tracelog "cubetonic.app/internal/persistence/log"
)

type replayOptions struct {
	Dir     string
	Session string
	Workers int
	Wait    time.Duration
	Debug   bool
	Logger  *log.Logger
}

type summary struct {
	Frames    int
	Sessions  int
	State     client.State
	Blocks    int64
	Meshes    int
	Triangles int
	Uploads   uint64
	LiveBytes int64
	Stale     uint64
	Failed    uint64
}

// discard stands in for the server side of a recorded session.
type discard struct{ sent int }

func (d *discard) Send(string, any) error {
	d.sent++
	return nil
}

// replayDir feeds every recorded inbound frame through a fresh state machine
// and mesh pipeline, then reports what ended up in the mesh table. The media
// cache is not consulted, so every texture resolves to the fallback layer.
func replayDir(opts replayOptions) (summary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	var sum summary

	files, err := tracelog.ListTraceFiles(opts.Dir)
	if err != nil {
		return sum, fmt.Errorf("list traces: %w", err)
	}
	if len(files) == 0 {
		return sum, fmt.Errorf("no trace files found in %s", opts.Dir)
	}

	up := mesh.NewMemoryUploader()
	rec := mesh.NewReconciler(up, logger, opts.Debug)
	m := client.NewMachine(client.MachineConfig{Username: "replay", Debug: opts.Debug, Logger: logger}, client.Deps{
		Meshers: func(defs *nodedef.Manager, tex *media.TextureIndex) (client.Mesher, error) {
			p, err := mesh.NewPool(mesh.Config{Workers: opts.Workers, Debug: opts.Debug, Logger: logger}, defs, tex, up)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
	}, &discard{})

	// The consumer starts once the machine has a pipeline.
	var received chan int
	var results <-chan mesh.Result
	startConsumer := func() {
		if results != nil {
			return
		}
		if results = m.Results(); results == nil {
			return
		}
		received = make(chan int, 1)
		go func() {
			n := 0
			for r := range results {
				rec.Accept(r)
				n++
				select {
				case <-received:
				default:
				}
				received <- n
			}
		}()
	}

	var sessionID string
	var handleErr error
	for _, path := range files {
		err := tracelog.ReadTraceFile(path, func(e tracelog.TraceEntry) error {
			if e.Dir != tracelog.DirIn || (opts.Session != "" && e.Session != opts.Session) {
				return nil
			}
			if e.Session != sessionID {
				if sessionID != "" && opts.Session == "" {
					// A later session starts its handshake again; only the
					// first one drives the machine.
					return errStopReplay
				}
				sessionID = e.Session
				sum.Sessions++
			}
			sum.Frames++
			if err := m.Handle(unquote(e.Raw)); err != nil {
				handleErr = err
				return errStopReplay
			}
			startConsumer()
			return nil
		})
		if errors.Is(err, errStopReplay) {
			break
		}
		if err != nil {
			m.Close()
			return sum, err
		}
	}

	if results != nil {
		want := m.Stats().Pool.Submitted
		deadline := time.After(opts.Wait)
		got := 0
	wait:
		for uint64(got) < want {
			select {
			case got = <-received:
			case <-deadline:
				logger.Printf("gave up waiting: %d of %d meshes", got, want)
				break wait
			}
		}
	}
	m.Close()

	st := m.Stats()
	_, stale := rec.Counts()
	_, live := up.Live()
	sum.State = st.State
	sum.Blocks = st.Blocks
	sum.Meshes = rec.Table().Len()
	sum.Triangles = rec.Table().Triangles()
	sum.Uploads = up.Uploads()
	sum.LiveBytes = live
	sum.Stale = stale
	sum.Failed = st.Pool.Failed
	logger.Printf("replayed %d frames of session %s", sum.Frames, sessionID)
	return sum, handleErr
}

var errStopReplay = errors.New("stop replay")

// unquote undoes the string wrapping the trace applies to frames that were
// not valid JSON.
func unquote(raw json.RawMessage) []byte {
	var s string
	if len(raw) > 0 && raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return []byte(s)
	}
	return raw
}
