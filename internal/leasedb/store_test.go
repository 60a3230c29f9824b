package leasedb_test

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AdguardTeam/dhclient-go/internal/lease"
	"github.com/AdguardTeam/dhclient-go/internal/leasedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (s *leasedb.Store, path string) {
	t.Helper()

	dir := t.TempDir()
	path = filepath.Join(dir, "dhclient.leases")

	s, err := leasedb.Open(path, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, path
}

func sampleLease(addr string, renew, rebind, expire time.Time) *lease.ClientLease {
	return &lease.ClientLease{
		Address: net.ParseIP(addr).To4(),
		Renewal: renew,
		Rebind:  rebind,
		Expiry:  expire,
	}
}

func TestStore_appendAndLoadRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	base := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	l1 := sampleLease("192.0.2.50", base.Add(300*time.Second), base.Add(525*time.Second), base.Add(600*time.Second))

	require.NoError(t, s.AppendLease("eth0", l1))

	res, err := s.Load()
	require.NoError(t, err)
	require.Len(t, res.Leases4, 1)

	got := res.Leases4[0]
	assert.True(t, got.Address.Equal(l1.Address))
	assert.WithinDuration(t, l1.Renewal, got.Renewal, time.Second)
	assert.WithinDuration(t, l1.Rebind, got.Rebind, time.Second)
	assert.WithinDuration(t, l1.Expiry, got.Expiry, time.Second)
}

func TestStore_staticLeasesNeverPersisted(t *testing.T) {
	s, path := newTestStore(t)

	l := sampleLease("192.0.2.1", time.Now(), time.Now(), time.Now())
	l.IsStatic = true

	require.NoError(t, s.AppendLease("eth0", l))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestStore_dedupeKeepsLatest(t *testing.T) {
	s, _ := newTestStore(t)

	base := time.Now()
	l1 := sampleLease("192.0.2.50", base, base.Add(time.Hour), base.Add(2*time.Hour))
	l2 := sampleLease("192.0.2.50", base.Add(time.Minute), base.Add(time.Hour), base.Add(3*time.Hour))

	require.NoError(t, s.AppendLease("eth0", l1))
	require.NoError(t, s.AppendLease("eth0", l2))

	res, err := s.Load()
	require.NoError(t, err)
	require.Len(t, res.Leases4, 1)
	assert.WithinDuration(t, l2.Expiry, res.Leases4[0].Expiry, time.Second)
}

func TestStore_compactionResetsCounter(t *testing.T) {
	s, path := newTestStore(t)

	base := time.Now()
	for i := 0; i < leasedb.MinLeaseWriteCount; i++ {
		l := sampleLease("192.0.2.50", base, base.Add(time.Hour), base.Add(2*time.Hour))
		require.NoError(t, s.AppendLease("eth0", l))
	}

	res, err := s.Load()
	require.NoError(t, err)
	require.Len(t, res.Leases4, 1)

	// The last append triggered a compaction down to one record.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "lease {"))

	// The counter was reset, so one more append is a plain append.
	l := sampleLease("192.0.2.50", base, base.Add(time.Hour), base.Add(2*time.Hour))
	require.NoError(t, s.AppendLease("eth0", l))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "lease {"))
}

func TestStore_duidRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	duid := []byte{0x00, 0x01, 0xde, 0xad, 0xbe, 0xef}
	require.NoError(t, s.WriteDUID(duid))

	res, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, duid, res.DUID)
}

func TestStore_releaseZeroesTimes(t *testing.T) {
	s, _ := newTestStore(t)

	base := time.Now()
	l := sampleLease("192.0.2.50", base.Add(time.Hour), base.Add(2*time.Hour), base.Add(3*time.Hour))

	now := base.Add(4 * time.Hour)
	require.NoError(t, s.AppendRelease("eth0", l, now))

	res, err := s.Load()
	require.NoError(t, err)
	require.Len(t, res.Leases4, 1)
	assert.WithinDuration(t, now, res.Leases4[0].Expiry, time.Second)
	assert.WithinDuration(t, now, res.Leases4[0].Renewal, time.Second)
	assert.WithinDuration(t, now, res.Leases4[0].Rebind, time.Second)
}
