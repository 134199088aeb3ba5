// Package rados is an in-process, snapshot-aware, versioned object
// store emulating per-pool RADOS object semantics: byte-range data, an
// ordered key-value side map (OMAP), extended attributes, copy-on-write
// snapshots, and optimistic versioning. No network or disk I/O is
// involved; client code written against a cluster object API can be
// exercised deterministically in a single process.
//
// # Handles
//
// A Cluster owns pools. Connect mints a Client, the unit of fencing: a
// blocklisted client fails every subsequent operation with
// ErrBlocklisted before any lock is taken. A Client opens an IoCtx per
// pool, carrying the target namespace, the read-snapshot pin, and the
// write SnapContext.
//
//	cluster := rados.NewCluster()
//	_ = cluster.CreatePool("rbd")
//	client := cluster.Connect()
//	ioctx, _ := client.OpenIoCtx("rbd", "")
//	_ = ioctx.Write(ctx, "obj", []byte("hello"), 0)
//
// An IoCtx is safe for concurrent operations but not for concurrent
// reconfiguration: set the namespace, read snapshot, and write context
// before sharing it, or give each goroutine its own via Dup.
//
// # Snapshots
//
// CreateSnapshot mints a pool-wide snapshot id. Writes supply a
// SnapContext (sequence plus pending ids, descending); a write whose
// sequence exceeds the HEAD's snapshot id retires HEAD copy-on-write.
// Reads pinned to a snapshot id observe the newest version written
// before it. A handle pinned to a snapshot rejects all mutation with
// ErrSnapshotReadOnly.
//
// # Errors
//
// Absence, duplicate creation, and malformed arguments surface as
// errdefs sentinels (errdefs.IsNotFound and friends). Cluster-specific
// conditions have their own sentinels: ErrBlocklisted,
// ErrSnapshotReadOnly, ErrNoData, ErrPredicateFalse, ErrVersionTooLow,
// ErrVersionTooHigh. CompareExtent reports the first differing byte via
// ExtentMismatchError:
//
//	if off, ok := rados.MismatchOffset(err); ok {
//	    log.Printf("differs at byte %d", off)
//	}
//
// # Class Methods
//
// Named (class, method) extensions are registered once on the cluster's
// MethodRegistry and invoked through IoCtx.Exec. Handlers receive a
// MethodContext exposing the same operation surface as native calls.
package rados
