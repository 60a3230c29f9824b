// Package leasedb implements the textual lease journal of spec.md §4.D: an
// append-oriented store for IPv4 (and passively-parsed IPv6) leases plus the
// client DUID, periodically compacted, recoverable on crash.
//
// The write discipline (atomic replace via google/renameio/v2/maybe,
// annotated errors via golibs/errors, an Info log line on every compaction) is
// grounded on internal/dhcpd/db.go and internal/dhcpd/migrate.go; the wire
// format itself follows spec.md §4.D's brace-nested grammar rather than the
// teacher's JSON leases.json, since the spec mandates textual, nested
// records rather than a structured encoding.
package leasedb

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/log"
	"github.com/AdguardTeam/dhclient-go/internal/lease"
	"github.com/google/renameio/v2/maybe"
)

// MinLeaseWriteCount is the number of appended records after which the
// journal is fully rewritten, per spec.md §4.D.
const MinLeaseWriteCount = 20

// Store is the on-disk lease journal.  Every method takes the store's mutex,
// so it is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	path     string
	duidPath string

	file        *os.File
	appendCount int

	duid []byte

	// dynamic holds the live snapshot of committed, non-static leases,
	// keyed by dotted-quad address, so that a self-triggered compaction
	// (AppendLease, once appendCount reaches MinLeaseWriteCount) has a
	// full snapshot to rewrite the journal from instead of an empty one.
	dynamic      map[string]*lease.ClientLease
	dynamicOrder []string
}

// Open opens (creating if necessary) the journal at path and, if duidPath is
// non-empty, a separate DUID file.  It does not load existing content; call
// Load for that.
func Open(path, duidPath string) (s *Store, err error) {
	//nolint:gosec // G302 -- a lease journal is not security-sensitive, and
	// 0644 matches a normal client's /var/lib file.
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lease journal: %w", err)
	}

	return &Store{path: path, duidPath: duidPath, file: f, dynamic: map[string]*lease.ClientLease{}}, nil
}

// Close closes the underlying file descriptor.
func (s *Store) Close() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.file.Close()
}

// LoadResult is everything Load recovers from disk.
type LoadResult struct {
	// DUID is the client identifier parsed from the DUID file (or the
	// "default-duid" statement in the main journal if no separate DUID
	// file was configured).
	DUID []byte

	// Leases4 are the recovered IPv4 leases, deduplicated on
	// (Address, IsStatic) keeping the most recently parsed record, per
	// spec.md §4.D's recovery rule, and ordered most recent first.
	Leases4 []*lease.ClientLease
}

// Load parses the full journal (and DUID file, if any) and rebuilds the
// in-memory lists.
func (s *Store) Load() (res *LoadResult, err error) {
	defer func() { err = errors.Annotate(err, "loading lease journal: %w") }()

	s.mu.Lock()
	defer s.mu.Unlock()

	res = &LoadResult{}

	if s.duidPath != "" {
		duid, dErr := loadDUIDFile(s.duidPath)
		if dErr != nil && !errors.Is(dErr, os.ErrNotExist) {
			return nil, dErr
		}
		res.DUID = duid
	}

	_, err = s.file.Seek(0, 0)
	if err != nil {
		return nil, fmt.Errorf("seeking journal: %w", err)
	}

	recs, duid, err := parseJournal(s.file)
	if err != nil {
		return nil, fmt.Errorf("parsing journal: %w", err)
	}

	if res.DUID == nil {
		res.DUID = duid
	}
	s.duid = res.DUID

	res.Leases4 = dedupeLeases(recs)

	// Track oldest first, so compaction keeps the journal's append order.
	for i := len(res.Leases4) - 1; i >= 0; i-- {
		if l := res.Leases4[i]; !l.IsStatic {
			s.trackDynamicLocked(l)
		}
	}

	_, err = s.file.Seek(0, 2)
	if err != nil {
		return nil, fmt.Errorf("seeking to journal end: %w", err)
	}

	return res, nil
}

// dedupeLeases keeps, for each (address, isStatic) pair, only the
// most-recently-appearing record, per spec.md §4.D, and returns the kept
// records most recent first.
func dedupeLeases(recs []*lease.ClientLease) (out []*lease.ClientLease) {
	type key struct {
		addr     string
		isStatic bool
	}

	seen := map[key]bool{}

	for i := len(recs) - 1; i >= 0; i-- {
		r := recs[i]
		k := key{addr: r.Address.String(), isStatic: r.IsStatic}
		if seen[k] {
			continue
		}

		seen[k] = true
		out = append(out, r)
	}

	return out
}

func loadDUIDFile(path string) (duid []byte, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.WithDeferred(err, f.Close()) }()

	_, duid, err = parseDUIDStatement(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("parsing duid file: %w", err)
	}

	return duid, nil
}

// AppendLease appends l as a "lease { ... }" record and fflushes.  Static
// leases are never persisted, per spec.md §4.D.
func (s *Store) AppendLease(ifaceName string, l *lease.ClientLease) (err error) {
	if l.IsStatic {
		return nil
	}

	defer func() { err = errors.Annotate(err, "appending lease: %w") }()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := formatLease(ifaceName, l)
	_, err = s.file.WriteString(rec)
	if err != nil {
		return fmt.Errorf("writing record: %w", err)
	}

	err = s.file.Sync()
	if err != nil {
		// fflush is required on every write; fsync is only mandatory at
		// release time (spec.md §4.D). A sync failure here is logged, not
		// fatal -- the in-memory state stays authoritative.
		log.Info("leasedb: sync after append: %s", err)
	}

	s.trackDynamicLocked(l)

	s.appendCount++
	if s.appendCount >= MinLeaseWriteCount {
		return s.compactLocked(ifaceName, s.dynamicSnapshotLocked())
	}

	return nil
}

// AppendRelease appends l with Expiry == Renewal == Rebind == now, and
// fsyncs, per spec.md §8 scenario 6.
func (s *Store) AppendRelease(ifaceName string, l *lease.ClientLease, now time.Time) (err error) {
	defer func() { err = errors.Annotate(err, "appending release: %w") }()

	released := l.Clone()
	released.Expiry, released.Renewal, released.Rebind = now, now, now

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.file.WriteString(formatLease(ifaceName, released))
	if err != nil {
		return fmt.Errorf("writing record: %w", err)
	}

	s.untrackDynamicLocked(l.Address)

	return s.file.Sync()
}

// Compact performs a full rewrite of the journal from the given snapshot of
// committed leases, resetting the append counter, per spec.md §4.D.
func (s *Store) Compact(ifaceName string, leases []*lease.ClientLease) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.compactLocked(ifaceName, leases)
	if err != nil {
		return err
	}

	s.dynamic = map[string]*lease.ClientLease{}
	s.dynamicOrder = nil
	for _, l := range leases {
		if !l.IsStatic {
			s.trackDynamicLocked(l)
		}
	}

	return nil
}

// trackDynamicLocked records l as the current committed state for its
// address, so the next self-triggered compaction can rewrite the journal
// from a live snapshot instead of an empty one.  s.mu must be held.
func (s *Store) trackDynamicLocked(l *lease.ClientLease) {
	key := ip4String(l.Address)
	if _, ok := s.dynamic[key]; !ok {
		s.dynamicOrder = append(s.dynamicOrder, key)
	}

	s.dynamic[key] = l.Clone()
}

// untrackDynamicLocked removes addr from the tracked snapshot, e.g. once it
// has been released.  s.mu must be held.
func (s *Store) untrackDynamicLocked(addr net.IP) {
	delete(s.dynamic, ip4String(addr))
}

// dynamicSnapshotLocked returns the currently tracked leases, in the order
// they were first committed.  s.mu must be held.
func (s *Store) dynamicSnapshotLocked() (out []*lease.ClientLease) {
	for _, key := range s.dynamicOrder {
		if l, ok := s.dynamic[key]; ok {
			out = append(out, l)
		}
	}

	return out
}

// compactLocked must be called with s.mu held.
func (s *Store) compactLocked(ifaceName string, leases []*lease.ClientLease) (err error) {
	defer func() { err = errors.Annotate(err, "compacting lease journal: %w") }()

	var buf []byte
	if len(s.duid) > 0 {
		buf = append(buf, formatDUID(s.duid)...)
	}
	for _, l := range leases {
		if l.IsStatic {
			continue
		}

		buf = append(buf, formatLease(ifaceName, l)...)
	}

	err = maybe.WriteFile(s.path, buf, 0o644)
	if err != nil {
		return err
	}

	newFile, err := os.OpenFile(s.path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reopening journal: %w", err)
	}

	_ = s.file.Close()
	s.file = newFile
	s.appendCount = 0

	log.Info("leasedb: compacted %d leases into %q", len(leases), s.path)

	return nil
}

// SetDUID stores the client DUID, to be written out on the next compaction
// or WriteDUID call.
func (s *Store) SetDUID(duid []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.duid = duid
}

// WriteDUID writes the default-duid statement immediately, either to the
// separate DUID file (if configured) or by appending to the main journal.
func (s *Store) WriteDUID(duid []byte) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.duid = duid
	stmt := formatDUID(duid)

	if s.duidPath == "" {
		_, err = s.file.WriteString(stmt)
		if err != nil {
			return fmt.Errorf("writing duid: %w", err)
		}

		return s.file.Sync()
	}

	return maybe.WriteFile(s.duidPath, []byte(stmt), 0o644)
}

// ip4String converts net.IP to its dotted-quad string, defensively handling nil.
func ip4String(ip net.IP) (s string) {
	if ip == nil {
		return "0.0.0.0"
	}

	return ip.String()
}
