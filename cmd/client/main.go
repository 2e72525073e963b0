package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"cubetonic.app/internal/client"
	"cubetonic.app/internal/config"
	"cubetonic.app/internal/media"
	"cubetonic.app/internal/mesh"
	"cubetonic.app/internal/nodedef"
	"cubetonic.app/internal/persistence/indexdb"
	tracelog "cubetonic.app/internal/persistence/log"
	"cubetonic.app/internal/protocol"
	"cubetonic.app/internal/transport/ws"
	"cubetonic.app/internal/world"
)

const frameInterval = time.Second / 60

func main() {
	var (
		configPath = flag.String("config", "", "path to client.yaml (optional)")
		serverURL  = flag.String("server", "", "websocket url (overrides config)")
		username   = flag.String("username", "", "account name (default: random test name)")
		traceDir   = flag.String("trace_dir", "", "write a frame trace here (overrides config)")
		metrics    = flag.String("metrics", "", "metrics listen address (overrides config)")
		workers    = flag.Int("workers", -1, "mesh workers, 0 = one per CPU (overrides config)")
		strict     = flag.Bool("strict_schema", false, "drop inbound frames that fail schema validation")
		debug      = flag.Bool("debug", false, "verbose logging")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[client] ", log.LstdFlags|log.Lmicroseconds)

	// Runs after every other deferred cleanup so traces and the index flush.
	exitCode := 0
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()

	cfg := config.Defaults()
	if *configPath != "" {
		c, err := config.Load(*configPath)
		if err != nil {
			logger.Fatalf("load config: %v", err)
		}
		cfg = c
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *username != "" {
		cfg.Username = *username
	}
	if *traceDir != "" {
		cfg.TraceDir = *traceDir
	}
	if *metrics != "" {
		cfg.MetricsAddr = *metrics
	}
	if *workers >= 0 {
		cfg.MeshWorkers = *workers
	}
	cfg.StrictSchema = cfg.StrictSchema || *strict
	cfg.Debug = cfg.Debug || *debug
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}
	if cfg.Username == "" {
		cfg.Username = client.DefaultUsername()
	}

	ctx, cancel := signalContext()
	defer cancel()

	var idx *indexdb.SQLiteIndex
	var rec media.Recorder
	if cfg.MediaIndexPath != "" {
		var err error
		idx, err = indexdb.OpenSQLite(cfg.MediaIndexPath)
		if err != nil {
			logger.Fatalf("open media index: %v", err)
		}
		defer idx.Close()
		rec = idx
	}
	cache := media.NewCache(cfg.MediaCacheDir, rec, logger)

	scfg := client.SessionConfig{
		PositionInterval: cfg.PositionInterval(),
		ReadyTimeout:     cfg.HandshakeTimeout(),
		Logger:           logger,
	}
	if cfg.StrictSchema {
		v, err := protocol.NewValidator()
		if err != nil {
			logger.Fatalf("schemas: %v", err)
		}
		scfg.Validator = v
	}
	var trace *tracelog.TraceLogger
	if cfg.TraceDir != "" {
		sessionID := uuid.NewString()
		trace = tracelog.NewTraceLogger(cfg.TraceDir, sessionID)
		defer func() {
			_ = trace.Close()
			logger.Printf("trace %s: %s written to %s", sessionID, humanize.Bytes(uint64(trace.Written())), cfg.TraceDir)
		}()
		scfg.Tracer = trace
	}

	logger.Printf("connecting to %s as %s", cfg.ServerURL, cfg.Username)
	dialCtx, dialCancel := context.WithTimeout(ctx, cfg.HandshakeTimeout())
	conn, err := ws.Dial(dialCtx, cfg.ServerURL, ws.Options{
		HandshakeTimeout: cfg.HandshakeTimeout(),
		ReadTimeout:      cfg.ReadTimeout(),
		WriteTimeout:     cfg.WriteTimeout(),
	})
	dialCancel()
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}

	up := mesh.NewMemoryUploader()
	inbox := &client.PositionInbox{}
	sess := client.NewSession(conn, client.MachineConfig{
		Username:             cfg.Username,
		Language:             cfg.Language,
		SerializationVersion: cfg.SerializationVersion,
		ProtoVersionMin:      cfg.ProtocolVersionMin,
		ProtoVersionMax:      cfg.ProtocolVersionMax,
		ViewRange:            cfg.ViewRange,
		Debug:                cfg.Debug,
	}, client.Deps{
		Media: cache,
		Meshers: func(defs *nodedef.Manager, tex *media.TextureIndex) (client.Mesher, error) {
			p, err := mesh.NewPool(mesh.Config{Workers: cfg.MeshWorkers, Debug: cfg.Debug, Logger: logger}, defs, tex, up)
			if err != nil {
				return nil, err
			}
			logger.Printf("mesh pool: %d workers", p.Workers())
			return p, nil
		},
		Sink:   inbox,
		Source: inbox,
	}, nil, scfg)
	reconciler := mesh.NewReconciler(up, logger, cfg.Debug)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           newMetricsMux(&clientMetrics{sess: sess, rec: reconciler, up: up, idx: idx}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("metrics: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Printf("metrics on %s", cfg.MetricsAddr)
	}

	go func() { _ = sess.Run(ctx) }()

	runErr := consume(sess, reconciler, inbox, cfg.ViewRange, logger)

	// Everything still on screen goes back to the uploader.
	reconciler.Table().Range(func(_ world.BlockPos, r mesh.Result) bool {
		if r.Buffers != nil {
			up.Release(*r.Buffers)
		}
		return true
	})
	accepted, stale := reconciler.Counts()
	in, out, rejected := sess.FrameCounts()
	logger.Printf("frames in=%d out=%d rejected=%d meshes accepted=%d stale=%d uploads=%d",
		in, out, rejected, accepted, stale, up.Uploads())
	if idx != nil {
		syncCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := idx.Sync(syncCtx); err == nil {
			if total, found, err := idx.Count(syncCtx); err == nil {
				logger.Printf("media index: %d entries, %d cached", total, found)
			}
		}
		cancel()
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Printf("disconnected: %v", runErr)
		exitCode = 1
	}
}

// consume is the per-frame application loop: it applies mesh results and
// feeds server teleports back as the player's pose, until the session ends.
func consume(sess *client.Session, rec *mesh.Reconciler, inbox *client.PositionInbox, viewRange int, logger *log.Logger) error {
	frame := time.NewTicker(frameInterval)
	defer frame.Stop()
	report := time.NewTicker(10 * time.Second)
	defer report.Stop()

	var batch []mesh.Result
	apply := func() {
		batch = sess.Mailbox().Drain(batch[:0])
		for _, r := range batch {
			rec.Accept(r)
		}
		clear(batch)
	}

	for {
		select {
		case err := <-sess.Disconnected():
			apply()
			return err
		case <-frame.C:
			apply()
			if tp, ok := inbox.Take(); ok {
				inbox.Set(tp)
				logger.Printf("teleported to %v yaw=%.1f pitch=%.1f", tp.Pos, tp.Yaw, tp.Pitch)
				// Confirm right away instead of on the next position tick.
				_ = sess.Post(protocol.TypePlayerPosition, protocol.PlayerPositionMsg{
					Type:      protocol.TypePlayerPosition,
					Pos:       tp.Pos,
					Yaw:       tp.Yaw,
					Pitch:     tp.Pitch,
					ViewRange: viewRange,
				})
			}
		case <-report.C:
			st := sess.Machine().Stats()
			logger.Printf("state=%s blocks=%d meshes=%d triangles=%s queued=%d",
				st.State, st.Blocks, rec.Table().Len(), humanize.Comma(int64(rec.Table().Triangles())), st.Pool.Queued)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
