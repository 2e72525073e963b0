package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
)

func main() {
	var (
		traceDir = flag.String("trace", "", "trace dir containing trace-*.jsonl.zst")
		session  = flag.String("session", "", "only replay this session id (default: the first recorded session, stopping where the next begins)")
		workers  = flag.Int("workers", 0, "mesh workers, 0 = one per CPU")
		wait     = flag.Duration("wait", 30*time.Second, "how long to wait for outstanding meshes")
		debug    = flag.Bool("debug", false, "verbose logging")
	)
	flag.Parse()

	if *traceDir == "" {
		fmt.Fprintln(os.Stderr, "missing -trace")
		os.Exit(2)
	}

	logger := log.New(os.Stdout, "[replay] ", log.LstdFlags|log.Lmicroseconds)
	sum, err := replayDir(replayOptions{
		Dir:     *traceDir,
		Session: *session,
		Workers: *workers,
		Wait:    *wait,
		Debug:   *debug,
		Logger:  logger,
	})
	fmt.Printf("frames=%d sessions=%d state=%s blocks=%d meshes=%d triangles=%s uploads=%d live=%s stale=%d failed=%d\n",
		sum.Frames, sum.Sessions, sum.State, sum.Blocks, sum.Meshes, humanize.Comma(int64(sum.Triangles)),
		sum.Uploads, humanize.Bytes(uint64(sum.LiveBytes)), sum.Stale, sum.Failed)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
}
