package cluster

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"golang.org/x/sync/errgroup"
)

// TestConcurrentWritersDistinctObjects drives parallel read/write
// traffic over disjoint locators; the race detector is the real assert.
func TestConcurrentWritersDistinctObjects(t *testing.T) {
	ctx := context.Background()
	p := testPool(t)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < 8; w++ {
		l := loc(fmt.Sprintf("obj-%d", w))
		g.Go(func() error {
			payload := bytes.Repeat([]byte{byte('a' + l.ObjectID[4] - '0')}, 64)
			for i := 0; i < 100; i++ {
				if err := p.Write(ctx, l, payload, 0, SnapContext{}); err != nil {
					return fmt.Errorf("write %s: %w", l, err)
				}
				data, _, err := p.Read(ctx, l, 0, 0, NoSnap)
				if err != nil {
					return fmt.Errorf("read %s: %w", l, err)
				}
				if !bytes.Equal(data, payload) {
					return fmt.Errorf("read %s returned foreign bytes", l)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

// TestConcurrentSharedObject hammers one locator with writers, readers
// and snapshot churn at once. Readers only require that every observed
// state is one some writer produced whole.
func TestConcurrentSharedObject(t *testing.T) {
	ctx := context.Background()
	p := testPool(t)
	l := loc("shared")

	valid := make(map[string]bool)
	for w := 0; w < 4; w++ {
		valid[string(bytes.Repeat([]byte{byte('a' + w)}, 32))] = true
	}
	mustWrite(t, p, l, string(bytes.Repeat([]byte{'a'}, 32)), 0, SnapContext{})

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < 4; w++ {
		payload := bytes.Repeat([]byte{byte('a' + w)}, 32)
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				if err := p.WriteFull(ctx, l, payload, SnapContext{}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	for r := 0; r < 4; r++ {
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				data, _, err := p.Read(ctx, l, 0, 0, NoSnap)
				if err != nil {
					return err
				}
				if !valid[string(data)] {
					return fmt.Errorf("torn read: %q", data)
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		for i := 0; i < 50; i++ {
			id, err := p.CreateSnapshot(ctx)
			if err != nil {
				return err
			}
			if _, err := p.ListSnaps(ctx, l); err != nil {
				return err
			}
			if err := p.RemoveSnapshot(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

// TestConcurrentOmapWriters checks that interleaved OMAP mutation over
// one object neither loses entries nor corrupts key order.
func TestConcurrentOmapWriters(t *testing.T) {
	ctx := context.Background()
	p := testPool(t)
	l := loc("omap")

	g, ctx := errgroup.WithContext(ctx)
	const perWriter = 50
	for w := 0; w < 4; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				key := fmt.Sprintf("w%d.%04d", w, i)
				err := p.OmapSet(ctx, l, map[string][]byte{key: []byte(key)}, SnapContext{})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	// Snapshot churn retires the HEAD under the writers' feet; the
	// store must stay consistent across copy-on-write.
	g.Go(func() error {
		for i := 0; i < 25; i++ {
			id, err := p.CreateSnapshot(ctx)
			if err != nil {
				return err
			}
			snapc := SnapContext{Seq: id, Snaps: []uint64{id}}
			if err := p.Write(ctx, l, []byte{byte(i)}, 0, snapc); err != nil {
				return err
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	var keys []string
	cursor := ""
	for {
		page, more, err := p.OmapGetRange(ctx, l, cursor, "", 16)
		if err != nil {
			t.Fatalf("omap range: %v", err)
		}
		for _, e := range page {
			keys = append(keys, e.Key)
		}
		if !more {
			break
		}
		cursor = page[len(page)-1].Key
	}
	if len(keys) != 4*perWriter {
		t.Fatalf("found %d keys, want %d", len(keys), 4*perWriter)
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("key order broken at %d: %q then %q", i, keys[i-1], keys[i])
		}
	}
}
