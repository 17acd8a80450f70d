// Package lease tracks MAC-to-lease records with expiry and persists
// them as a JSON snapshot after every mutation.
package lease

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"os"
	"sync"
	"time"

	"dhcpd-go/pkg/ipam"
	"github.com/rs/zerolog"
)

// Lease is a time-bounded grant of an address to a MAC.
type Lease struct {
	IP        netip.Addr `json:"ip_address"`
	StartTime time.Time  `json:"start_time"`
	ExpiresAt time.Time  `json:"expires_at"`
	LeaseTime int64      `json:"lease_time"` // seconds
}

// StoreStats is a point-in-time summary of the lease table.
type StoreStats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Expired int `json:"expired"`
}

// Store is the lease table. The in-memory map is authoritative; the
// snapshot on disk is rewritten after every mutation. A failed write is
// logged and accepted: state may be lost across a crash, never within
// the running process.
type Store struct {
	sync.Mutex
	path            string
	defaultDuration time.Duration
	leases          map[ipam.MAC]*Lease
	logger          zerolog.Logger

	now func() time.Time // overridable for tests
}

// NewStore creates a store and loads the snapshot at path. A missing or
// corrupted snapshot starts the store empty rather than failing.
func NewStore(path string, defaultDuration time.Duration, logger zerolog.Logger) *Store {
	s := &Store{
		path:            path,
		defaultDuration: defaultDuration,
		leases:          make(map[ipam.MAC]*Lease),
		logger:          logger.With().Str("component", "lease").Logger(),
		now:             time.Now,
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info().Str("path", s.path).Msg("No existing lease file, starting fresh")
			return
		}
		s.logger.Error().Err(err).Str("path", s.path).Msg("Failed to read lease file")
		return
	}
	if len(data) == 0 {
		return
	}
	var leases map[ipam.MAC]*Lease
	if err := json.Unmarshal(data, &leases); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("Failed to unmarshal lease file, starting fresh")
		return
	}
	s.leases = leases
	s.logger.Info().Int("count", len(leases)).Str("path", s.path).Msg("Loaded leases from disk")
}

// save rewrites the full snapshot. Callers hold the store lock.
func (s *Store) save() {
	if err := s.write(); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("Failed to persist leases, in-memory state remains authoritative")
	}
}

func (s *Store) write() error {
	data, err := json.MarshalIndent(s.leases, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal leases: %w", err)
	}
	// Write to a temporary file first so a crash mid-write cannot
	// truncate the previous snapshot.
	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0640); err != nil {
		return fmt.Errorf("failed to write temporary lease file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		return fmt.Errorf("failed to rename temporary lease file: %w", err)
	}
	return nil
}

// Create records a lease for a MAC, overwriting any existing one, and
// persists the snapshot. A non-positive duration uses the store default.
func (s *Store) Create(mac ipam.MAC, ip netip.Addr, duration time.Duration) *Lease {
	s.Lock()
	defer s.Unlock()

	if duration <= 0 {
		duration = s.defaultDuration
	}
	now := s.now()
	l := &Lease{
		IP:        ip,
		StartTime: now,
		ExpiresAt: now.Add(duration),
		LeaseTime: int64(duration / time.Second),
	}
	s.leases[mac] = l
	s.save()
	s.logger.Info().Str("mac", mac.String()).Str("ip", ip.String()).Time("expires_at", l.ExpiresAt).Msg("Created lease")
	return l
}

// Release removes the MAC's lease if present, persists, and reports
// whether one existed.
func (s *Store) Release(mac ipam.MAC) bool {
	s.Lock()
	defer s.Unlock()

	l, ok := s.leases[mac]
	if !ok {
		return false
	}
	delete(s.leases, mac)
	s.save()
	s.logger.Info().Str("mac", mac.String()).Str("ip", l.IP.String()).Msg("Released lease")
	return true
}

// Lease returns a copy of the MAC's lease.
func (s *Store) Lease(mac ipam.MAC) (Lease, bool) {
	s.Lock()
	defer s.Unlock()

	l, ok := s.leases[mac]
	if !ok {
		return Lease{}, false
	}
	return *l, true
}

// IsValid reports whether the MAC holds an unexpired lease.
func (s *Store) IsValid(mac ipam.MAC) bool {
	s.Lock()
	defer s.Unlock()

	l, ok := s.leases[mac]
	return ok && s.now().Before(l.ExpiresAt)
}

// CleanupExpired removes every lease whose expiry has passed, persisting
// only when something was removed. It returns the removed count.
func (s *Store) CleanupExpired() int {
	s.Lock()
	defer s.Unlock()

	now := s.now()
	removed := 0
	for mac, l := range s.leases {
		if !now.Before(l.ExpiresAt) {
			delete(s.leases, mac)
			removed++
			s.logger.Info().Str("mac", mac.String()).Str("ip", l.IP.String()).Msg("Removed expired lease")
		}
	}
	if removed > 0 {
		s.save()
	}
	return removed
}

// All returns a copy of the lease table for reporting.
func (s *Store) All() map[ipam.MAC]Lease {
	s.Lock()
	defer s.Unlock()

	out := make(map[ipam.MAC]Lease, len(s.leases))
	for mac, l := range s.leases {
		out[mac] = *l
	}
	return out
}

// Stats returns lease counters. Expired leases are those past expiry
// that the reaper has not yet removed.
func (s *Store) Stats() StoreStats {
	s.Lock()
	defer s.Unlock()

	now := s.now()
	stats := StoreStats{Total: len(s.leases)}
	for _, l := range s.leases {
		if now.Before(l.ExpiresAt) {
			stats.Active++
		} else {
			stats.Expired++
		}
	}
	return stats
}
