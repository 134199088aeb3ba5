/*
   Copyright The containerd Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

// radosmem-stress drives a concurrent workload against an in-memory
// cluster and verifies round trips, snapshot restores, and OMAP
// pagination as it goes. It exists to shake out lock-ordering and
// copy-on-write races under the race detector.
package main

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/containerd/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/urfave/cli/v2"

	"github.com/spin-stack/radosmem/pkg/rados"
)

// Version information - set via ldflags at build time
var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "radosmem-stress",
		Usage:   "Concurrent stress workload for the in-memory object store",
		Version: fmt.Sprintf("%s (commit: %s)", version, gitCommit),
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "objects",
				Usage:   "Number of distinct objects to exercise",
				Value:   64,
				EnvVars: []string{"RADOSMEM_STRESS_OBJECTS"},
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Number of concurrent workers",
				Value:   8,
				EnvVars: []string{"RADOSMEM_STRESS_WORKERS"},
			},
			&cli.IntFlag{
				Name:    "rounds",
				Usage:   "Write/read/snapshot rounds per object",
				Value:   100,
				EnvVars: []string{"RADOSMEM_STRESS_ROUNDS"},
			},
			&cli.IntFlag{
				Name:  "snapshot-every",
				Usage: "Take a pool snapshot every N rounds per object (0 disables)",
				Value: 10,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (trace, debug, info, warn, error)",
				Value: "info",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "radosmem-stress: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	ctx := context.Background()
	if err := log.SetLevel(c.String("log-level")); err != nil {
		return err
	}

	cluster := rados.NewCluster()
	if err := cluster.CreatePool("stress"); err != nil {
		return err
	}
	client := cluster.Connect()

	start := time.Now()
	p := pool.New().WithMaxGoroutines(c.Int("workers")).WithContext(ctx).WithCancelOnError()
	for i := 0; i < c.Int("objects"); i++ {
		oid := fmt.Sprintf("obj-%04d", i)
		seed := int64(i)
		p.Go(func(ctx context.Context) error {
			ioctx, err := client.OpenIoCtx("stress", "")
			if err != nil {
				return err
			}
			return exercise(ctx, ioctx, oid, seed, c.Int("rounds"), c.Int("snapshot-every"))
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}

	ioctx, err := client.OpenIoCtx("stress", "")
	if err != nil {
		return err
	}
	log.G(ctx).WithField("epoch", ioctx.Epoch()).
		WithField("elapsed", time.Since(start)).
		Info("stress workload complete")
	return nil
}

// exercise runs the per-object workload: write, verify, OMAP churn,
// and periodic snapshot/rollback round trips.
func exercise(ctx context.Context, ioctx *rados.IoCtx, oid string, seed int64, rounds, snapEvery int) error {
	rng := rand.New(rand.NewSource(seed))
	var snaps []uint64

	for round := 0; round < rounds; round++ {
		payload := make([]byte, 1+rng.Intn(4096))
		rng.Read(payload)
		off := uint64(rng.Intn(1024))

		if snapEvery > 0 && round%snapEvery == 0 {
			id, err := ioctx.CreateSnapshot(ctx)
			if err != nil {
				return err
			}
			snaps = append(snaps, id)
			if err := ioctx.SetWriteContext(rados.SnapContext{Seq: id, Snaps: reversed(snaps)}); err != nil {
				return err
			}
		}

		if err := ioctx.Write(ctx, oid, payload, off); err != nil {
			return fmt.Errorf("write %s round %d: %w", oid, round, err)
		}
		got, _, err := ioctx.Read(ctx, oid, off, uint64(len(payload)))
		if err != nil {
			return fmt.Errorf("read %s round %d: %w", oid, round, err)
		}
		if !bytes.Equal(got, payload) {
			return fmt.Errorf("round trip mismatch on %s round %d", oid, round)
		}

		key := fmt.Sprintf("round-%06d", round)
		if err := ioctx.OmapSet(ctx, oid, map[string][]byte{key: payload[:1]}); err != nil {
			return err
		}
	}

	// Page the whole OMAP back out and make sure pagination terminates.
	var cursor string
	seen := 0
	for {
		page, more, err := ioctx.OmapGetRange(ctx, oid, cursor, "round-", 37)
		if err != nil {
			return err
		}
		seen += len(page)
		if !more {
			break
		}
		cursor = page[len(page)-1].Key
	}
	if seen != rounds {
		return fmt.Errorf("omap pagination on %s returned %d of %d entries", oid, seen, rounds)
	}

	snapset, err := ioctx.ListSnaps(ctx, oid)
	if err != nil {
		return err
	}
	log.G(ctx).WithField("object", oid).
		WithField("clones", len(snapset.Clones)).
		Debug("object workload complete")
	return nil
}

// reversed returns the snapshot ids in descending order, the order a
// SnapContext carries them.
func reversed(snaps []uint64) []uint64 {
	out := make([]uint64, len(snaps))
	for i, id := range snaps {
		out[len(snaps)-1-i] = id
	}
	return out
}
