package cluster

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/containerd/errdefs"
)

func testPool(t *testing.T) *Pool {
	t.Helper()
	return NewPool(1, t.Name())
}

func loc(oid string) Locator {
	return Locator{ObjectID: oid}
}

func mustWrite(t *testing.T, p *Pool, l Locator, data string, off uint64, snapc SnapContext) {
	t.Helper()
	if err := p.Write(context.Background(), l, []byte(data), off, snapc); err != nil {
		t.Fatalf("write %q at %d: %v", data, off, err)
	}
}

func mustRead(t *testing.T, p *Pool, l Locator, off, n uint64, snapID uint64) string {
	t.Helper()
	data, _, err := p.Read(context.Background(), l, off, n, snapID)
	if err != nil {
		t.Fatalf("read %d~%d: %v", off, n, err)
	}
	return string(data)
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := testPool(t)
	l := loc("a")

	mustWrite(t, p, l, "hello", 0, SnapContext{})

	if got := mustRead(t, p, l, 0, 0, NoSnap); got != "hello" {
		t.Fatalf("read back %q, want %q", got, "hello")
	}

	_, ver, err := p.Read(ctx, l, 0, 0, NoSnap)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if ver != 1 {
		t.Fatalf("object version after first write = %d, want 1", ver)
	}
}

func TestReadClipping(t *testing.T) {
	p := testPool(t)
	l := loc("a")
	mustWrite(t, p, l, "0123456789", 0, SnapContext{})

	for _, tc := range []struct {
		name string
		off  uint64
		n    uint64
		want string
	}{
		{name: "interior", off: 2, n: 3, want: "234"},
		{name: "to end with zero length", off: 4, n: 0, want: "456789"},
		{name: "clipped past end", off: 8, n: 10, want: "89"},
		{name: "offset at end", off: 10, n: 5, want: ""},
		{name: "offset past end", off: 100, n: 5, want: ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := mustRead(t, p, l, tc.off, tc.n, NoSnap); got != tc.want {
				t.Fatalf("read %d~%d = %q, want %q", tc.off, tc.n, got, tc.want)
			}
		})
	}
}

func TestReadMissingObject(t *testing.T) {
	p := testPool(t)
	if _, _, err := p.Read(context.Background(), loc("nope"), 0, 0, NoSnap); !errdefs.IsNotFound(err) {
		t.Fatalf("read missing object: %v, want not found", err)
	}
}

func TestWriteZeroExtends(t *testing.T) {
	p := testPool(t)
	l := loc("a")
	mustWrite(t, p, l, "ab", 0, SnapContext{})
	mustWrite(t, p, l, "cd", 5, SnapContext{})

	if got := mustRead(t, p, l, 0, 0, NoSnap); got != "ab\x00\x00\x00cd" {
		t.Fatalf("read back %q", got)
	}
}

func TestWriteFullReplaces(t *testing.T) {
	ctx := context.Background()
	p := testPool(t)
	l := loc("a")
	mustWrite(t, p, l, "a long run of bytes", 0, SnapContext{})

	if err := p.WriteFull(ctx, l, []byte("new"), SnapContext{}); err != nil {
		t.Fatalf("write-full: %v", err)
	}
	if got := mustRead(t, p, l, 0, 0, NoSnap); got != "new" {
		t.Fatalf("read back %q, want %q", got, "new")
	}
}

func TestAppend(t *testing.T) {
	ctx := context.Background()
	p := testPool(t)
	l := loc("a")

	for _, chunk := range []string{"foo", "bar", "baz"} {
		if err := p.Append(ctx, l, []byte(chunk), SnapContext{}); err != nil {
			t.Fatalf("append %q: %v", chunk, err)
		}
	}
	if got := mustRead(t, p, l, 0, 0, NoSnap); got != "foobarbaz" {
		t.Fatalf("read back %q, want %q", got, "foobarbaz")
	}
}

func TestWriteSame(t *testing.T) {
	ctx := context.Background()
	p := testPool(t)

	t.Run("tiles", func(t *testing.T) {
		l := loc("tiled")
		if err := p.WriteSame(ctx, l, []byte("ab"), 6, 1, SnapContext{}); err != nil {
			t.Fatalf("write-same: %v", err)
		}
		if got := mustRead(t, p, l, 0, 0, NoSnap); got != "\x00ababab" {
			t.Fatalf("read back %q", got)
		}
	})

	t.Run("rejects bad lengths", func(t *testing.T) {
		for _, tc := range []struct {
			name     string
			data     string
			writeLen uint64
		}{
			{name: "zero write length", data: "ab", writeLen: 0},
			{name: "empty data", data: "", writeLen: 4},
			{name: "not a multiple", data: "abc", writeLen: 7},
		} {
			if err := p.WriteSame(ctx, loc("bad"), []byte(tc.data), tc.writeLen, 0, SnapContext{}); !errdefs.IsInvalidArgument(err) {
				t.Errorf("%s: got %v, want invalid argument", tc.name, err)
			}
		}
	})
}

func TestTruncate(t *testing.T) {
	ctx := context.Background()
	p := testPool(t)
	l := loc("a")
	mustWrite(t, p, l, "0123456789", 0, SnapContext{})

	if err := p.Truncate(ctx, l, 4, SnapContext{}); err != nil {
		t.Fatalf("truncate shrink: %v", err)
	}
	if got := mustRead(t, p, l, 0, 0, NoSnap); got != "0123" {
		t.Fatalf("after shrink read %q", got)
	}

	if err := p.Truncate(ctx, l, 6, SnapContext{}); err != nil {
		t.Fatalf("truncate grow: %v", err)
	}
	if got := mustRead(t, p, l, 0, 0, NoSnap); got != "0123\x00\x00" {
		t.Fatalf("after grow read %q", got)
	}
}

func TestZero(t *testing.T) {
	ctx := context.Background()
	p := testPool(t)

	t.Run("interior", func(t *testing.T) {
		l := loc("interior")
		mustWrite(t, p, l, "0123456789", 0, SnapContext{})
		if err := p.Zero(ctx, l, 2, 3, SnapContext{}); err != nil {
			t.Fatalf("zero: %v", err)
		}
		if got := mustRead(t, p, l, 0, 0, NoSnap); got != "01\x00\x00\x0056789" {
			t.Fatalf("read back %q", got)
		}
	})

	t.Run("reaching the end truncates", func(t *testing.T) {
		l := loc("tail")
		mustWrite(t, p, l, "0123456789", 0, SnapContext{})
		if err := p.Zero(ctx, l, 6, 100, SnapContext{}); err != nil {
			t.Fatalf("zero: %v", err)
		}
		st, err := p.Stat(ctx, l)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if st.Size != 6 {
			t.Fatalf("size after tail zero = %d, want 6", st.Size)
		}
	})

	t.Run("missing object is a no-op", func(t *testing.T) {
		l := loc("missing")
		if err := p.Zero(ctx, l, 0, 10, SnapContext{}); err != nil {
			t.Fatalf("zero on missing object: %v", err)
		}
		if _, _, err := p.Read(ctx, l, 0, 0, NoSnap); !errdefs.IsNotFound(err) {
			t.Fatalf("object sprang into existence: %v", err)
		}
	})
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	p := testPool(t)
	l := loc("a")

	if err := p.Create(ctx, l, true, SnapContext{}); err != nil {
		t.Fatalf("exclusive create: %v", err)
	}
	if err := p.Create(ctx, l, true, SnapContext{}); !errdefs.IsAlreadyExists(err) {
		t.Fatalf("second exclusive create: %v, want already exists", err)
	}
	if err := p.Create(ctx, l, false, SnapContext{}); err != nil {
		t.Fatalf("non-exclusive create on existing object: %v", err)
	}

	st, err := p.Stat(ctx, l)
	if err != nil {
		t.Fatalf("stat created object: %v", err)
	}
	if st.Size != 0 {
		t.Fatalf("created object size = %d, want 0", st.Size)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	p := testPool(t)

	t.Run("sole version erases entry", func(t *testing.T) {
		l := loc("sole")
		mustWrite(t, p, l, "x", 0, SnapContext{})
		if err := p.OmapSet(ctx, l, map[string][]byte{"k": []byte("v")}, SnapContext{}); err != nil {
			t.Fatalf("omap set: %v", err)
		}
		if err := p.Remove(ctx, l, SnapContext{}); err != nil {
			t.Fatalf("remove: %v", err)
		}
		if _, _, err := p.Read(ctx, l, 0, 0, NoSnap); !errdefs.IsNotFound(err) {
			t.Fatalf("read after remove: %v, want not found", err)
		}
		// A recreated object starts with a clean OMAP.
		mustWrite(t, p, l, "y", 0, SnapContext{})
		got, err := p.OmapGetByKeys(ctx, l, []string{"k"})
		if err != nil {
			t.Fatalf("omap get: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("omap survived removal: %v", got)
		}
	})

	t.Run("missing object", func(t *testing.T) {
		if err := p.Remove(ctx, loc("missing"), SnapContext{}); !errdefs.IsNotFound(err) {
			t.Fatalf("remove missing: %v, want not found", err)
		}
	})

	t.Run("snapshotted history survives", func(t *testing.T) {
		l := loc("history")
		mustWrite(t, p, l, "keep", 0, SnapContext{})
		snap, err := p.CreateSnapshot(ctx)
		if err != nil {
			t.Fatalf("create snapshot: %v", err)
		}
		snapc := SnapContext{Seq: snap, Snaps: []uint64{snap}}
		if err := p.Remove(ctx, l, snapc); err != nil {
			t.Fatalf("remove: %v", err)
		}
		if _, _, err := p.Read(ctx, l, 0, 0, NoSnap); !errdefs.IsNotFound(err) {
			t.Fatalf("live read after remove: %v, want not found", err)
		}
		if got := mustRead(t, p, l, 0, 0, snap); got != "keep" {
			t.Fatalf("snapshot read after remove = %q, want %q", got, "keep")
		}
	})
}

func TestRemoveNotifiesWatchers(t *testing.T) {
	ctx := context.Background()
	p := testPool(t)
	l := loc("a")
	mustWrite(t, p, l, "x", 0, SnapContext{})

	var fired []Locator
	handle, err := p.WatchRemoval(ctx, l, RemovalWatcherFunc(func(_ context.Context, l Locator) {
		fired = append(fired, l)
	}))
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := p.Remove(ctx, l, SnapContext{}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(fired) != 1 || fired[0] != l {
		t.Fatalf("watcher fired for %v, want exactly %v", fired, l)
	}

	// The watcher set was erased with the object.
	if err := p.UnwatchRemoval(ctx, l, handle); !errdefs.IsNotFound(err) {
		t.Fatalf("unwatch after removal: %v, want not found", err)
	}
}

func TestSparseRead(t *testing.T) {
	ctx := context.Background()
	p := testPool(t)
	l := loc("a")
	mustWrite(t, p, l, "0123456789", 0, SnapContext{})

	extents, data, err := p.SparseRead(ctx, l, 2, 5, NoSnap)
	if err != nil {
		t.Fatalf("sparse read: %v", err)
	}
	if string(data) != "23456" {
		t.Fatalf("sparse read data %q", data)
	}
	if len(extents) != 1 || extents[0].Off != 2 || extents[0].Len != 5 {
		t.Fatalf("sparse read extents %v", extents)
	}

	extents, data, err = p.SparseRead(ctx, l, 100, 5, NoSnap)
	if err != nil {
		t.Fatalf("sparse read past end: %v", err)
	}
	if len(extents) != 0 || len(data) != 0 {
		t.Fatalf("sparse read past end returned %v %q", extents, data)
	}
}

func TestCompareExtent(t *testing.T) {
	ctx := context.Background()
	p := testPool(t)
	l := loc("a")
	mustWrite(t, p, l, "hello", 0, SnapContext{})

	if err := p.CompareExtent(ctx, l, 0, []byte("hello"), NoSnap); err != nil {
		t.Fatalf("matching compare: %v", err)
	}

	err := p.CompareExtent(ctx, l, 0, []byte("heXlo"), NoSnap)
	if off, ok := MismatchOffset(err); !ok || off != 2 {
		t.Fatalf("mismatch compare: %v (offset %d, ok %v)", err, off, ok)
	}

	// Bytes past the end of the object compare as zeroes.
	if err := p.CompareExtent(ctx, l, 3, []byte("lo\x00\x00"), NoSnap); err != nil {
		t.Fatalf("trailing zero compare: %v", err)
	}

	// A range entirely past the end compares as zeroes.
	if err := p.CompareExtent(ctx, l, 100, []byte{0, 0}, NoSnap); err != nil {
		t.Fatalf("past-end zero compare: %v", err)
	}
	err = p.CompareExtent(ctx, l, 100, []byte{0, 1}, NoSnap)
	if off, ok := MismatchOffset(err); !ok || off != 1 {
		t.Fatalf("past-end nonzero compare: %v (offset %d, ok %v)", err, off, ok)
	}

	// A missing object is all zeroes.
	if err := p.CompareExtent(ctx, loc("missing"), 0, make([]byte, 4), NoSnap); err != nil {
		t.Fatalf("missing object zero compare: %v", err)
	}
	err = p.CompareExtent(ctx, loc("missing"), 0, []byte{0, 1}, NoSnap)
	if off, ok := MismatchOffset(err); !ok || off != 1 {
		t.Fatalf("missing object nonzero compare: %v (offset %d, ok %v)", err, off, ok)
	}
}

func TestStatAndModTime(t *testing.T) {
	ctx := context.Background()
	p := testPool(t)
	l := loc("a")
	mustWrite(t, p, l, "hello", 0, SnapContext{})

	st, err := p.Stat(ctx, l)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Size != 5 {
		t.Fatalf("stat size = %d, want 5", st.Size)
	}
	if st.ModTime.IsZero() {
		t.Fatal("stat mtime is zero")
	}

	want := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := p.SetModTime(ctx, l, want, SnapContext{}); err != nil {
		t.Fatalf("set mtime: %v", err)
	}
	st, err = p.Stat(ctx, l)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !st.ModTime.Equal(want) {
		t.Fatalf("stat mtime = %v, want %v", st.ModTime, want)
	}

	if _, err := p.Stat(ctx, loc("missing")); !errdefs.IsNotFound(err) {
		t.Fatalf("stat missing: %v, want not found", err)
	}
}

func TestAssertExists(t *testing.T) {
	ctx := context.Background()
	p := testPool(t)
	l := loc("a")

	if err := p.AssertExists(ctx, l, NoSnap); !errdefs.IsNotFound(err) {
		t.Fatalf("assert on missing: %v, want not found", err)
	}
	mustWrite(t, p, l, "x", 0, SnapContext{})
	if err := p.AssertExists(ctx, l, NoSnap); err != nil {
		t.Fatalf("assert on live object: %v", err)
	}
}

func TestAssertVersion(t *testing.T) {
	ctx := context.Background()
	p := testPool(t)
	l := loc("a")
	mustWrite(t, p, l, "x", 0, SnapContext{})
	mustWrite(t, p, l, "y", 0, SnapContext{})

	ver, err := p.ObjectVersion(ctx, l)
	if err != nil {
		t.Fatalf("object version: %v", err)
	}
	if ver != 2 {
		t.Fatalf("object version = %d, want 2", ver)
	}

	if err := p.AssertVersion(ctx, l, ver); err != nil {
		t.Fatalf("assert current version: %v", err)
	}
	if err := p.AssertVersion(ctx, l, ver-1); !errors.Is(err, ErrVersionTooLow) {
		t.Fatalf("assert stale version: %v, want %v", err, ErrVersionTooLow)
	}
	if err := p.AssertVersion(ctx, l, ver+1); !errors.Is(err, ErrVersionTooHigh) {
		t.Fatalf("assert future version: %v, want %v", err, ErrVersionTooHigh)
	}
	if err := p.AssertVersion(ctx, loc("missing"), 1); !errdefs.IsNotFound(err) {
		t.Fatalf("assert on missing: %v, want not found", err)
	}
}

func TestEpochAdvancesOnMutation(t *testing.T) {
	ctx := context.Background()
	p := testPool(t)
	l := loc("a")

	last := p.Epoch()
	step := func(name string, fn func() error) {
		t.Helper()
		if err := fn(); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if cur := p.Epoch(); cur <= last {
			t.Fatalf("%s: epoch %d did not advance past %d", name, cur, last)
		} else {
			last = cur
		}
	}

	step("write", func() error { return p.Write(ctx, l, []byte("x"), 0, SnapContext{}) })
	step("truncate", func() error { return p.Truncate(ctx, l, 10, SnapContext{}) })
	step("omap set", func() error { return p.OmapSet(ctx, l, map[string][]byte{"k": nil}, SnapContext{}) })
	step("setxattr", func() error { return p.XattrSet(ctx, l, "user.x", []byte("v")) })
	step("remove", func() error { return p.Remove(ctx, l, SnapContext{}) })

	// Reads and hints consume no epoch.
	if err := p.SetAllocHint(ctx, loc("hinted"), 4096, 4096, SnapContext{}); err != nil {
		t.Fatalf("alloc hint: %v", err)
	}
	if cur := p.Epoch(); cur != last {
		t.Fatalf("alloc hint moved the epoch from %d to %d", last, cur)
	}
}

func TestCurrentVersionTracksLastMutation(t *testing.T) {
	ctx := context.Background()
	p := testPool(t)
	l := loc("a")
	mustWrite(t, p, l, "x", 0, SnapContext{})

	v1, err := p.CurrentVersion(ctx, l)
	if err != nil {
		t.Fatalf("current version: %v", err)
	}

	// Mutating an unrelated object must not disturb this object's token.
	mustWrite(t, p, loc("other"), "y", 0, SnapContext{})
	v2, err := p.CurrentVersion(ctx, l)
	if err != nil {
		t.Fatalf("current version: %v", err)
	}
	if v2 != v1 {
		t.Fatalf("version moved from %d to %d without a mutation", v1, v2)
	}

	mustWrite(t, p, l, "z", 0, SnapContext{})
	v3, err := p.CurrentVersion(ctx, l)
	if err != nil {
		t.Fatalf("current version: %v", err)
	}
	if v3 <= v1 {
		t.Fatalf("version %d did not advance past %d after a write", v3, v1)
	}
}

func TestReadReturnsIndependentCopy(t *testing.T) {
	ctx := context.Background()
	p := testPool(t)
	l := loc("a")
	mustWrite(t, p, l, "hello", 0, SnapContext{})

	data, _, err := p.Read(ctx, l, 0, 0, NoSnap)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	data[0] = 'X'

	if got := mustRead(t, p, l, 0, 0, NoSnap); got != "hello" {
		t.Fatalf("stored data was aliased by a read: %q", got)
	}
	if !bytes.Equal(data, []byte("Xello")) {
		t.Fatalf("local copy %q", data)
	}
}
