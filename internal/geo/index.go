package geo

import (
	"sort"
	"sync"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/presence"
	"github.com/google/uuid"
)

type Match struct {
	DoctorID   uuid.UUID `json:"doctor_id"`
	DistanceKm float64   `json:"distance_km"`
}

type entry struct {
	point   Point
	hash    string // at MaxPrecision
	status  presence.Status
	version int64
}

// Index buckets doctor positions by every geohash prefix from 1 to
// MaxPrecision. Each update touches only the updated doctor's buckets.
type Index struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]entry
	buckets [MaxPrecision + 1]map[string]map[uuid.UUID]struct{}
}

func NewIndex() *Index {
	ix := &Index{entries: make(map[uuid.UUID]entry)}
	for p := range ix.buckets {
		ix.buckets[p] = make(map[string]map[uuid.UUID]struct{})
	}
	return ix
}

// Upsert records the doctor's position and status as of presence version.
// A write older than the one already applied is dropped and reports false,
// so concurrent writers cannot leave a stale status behind.
func (ix *Index) Upsert(doctorID uuid.UUID, p Point, status presence.Status, version int64) bool {
	hash := Encode(p, MaxPrecision)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	old, ok := ix.entries[doctorID]
	if ok && version < old.version {
		return false
	}
	if ok && old.hash != hash {
		ix.unbucket(doctorID, old.hash)
	}
	ix.entries[doctorID] = entry{point: p, hash: hash, status: status, version: version}
	for prec := uint(1); prec <= MaxPrecision; prec++ {
		key := hash[:prec]
		set := ix.buckets[prec][key]
		if set == nil {
			set = make(map[uuid.UUID]struct{})
			ix.buckets[prec][key] = set
		}
		set[doctorID] = struct{}{}
	}
	return true
}

// Apply mirrors a stored presence record into the index.
func (ix *Index) Apply(p *presence.Presence) bool {
	return ix.Upsert(p.DoctorID, Point{Latitude: p.Latitude, Longitude: p.Longitude}, p.Status, p.Version)
}

func (ix *Index) Remove(doctorID uuid.UUID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, ok := ix.entries[doctorID]; ok {
		ix.unbucket(doctorID, old.hash)
		delete(ix.entries, doctorID)
	}
}

// Query returns online doctors within radiusKm of center, nearest first.
// Doctors that are offline or in service are never returned.
func (ix *Index) Query(center Point, radiusKm float64) []Match {
	if radiusKm <= 0 {
		return []Match{}
	}
	prec := PrecisionForRadius(center, radiusKm)
	cells := Cover(center, radiusKm, prec)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	matches := make([]Match, 0)
	if len(ix.entries) == 0 {
		return matches
	}

	seen := make(map[uuid.UUID]struct{})
	for _, cell := range cells {
		for id := range ix.buckets[prec][cell] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			e := ix.entries[id]
			if e.status != presence.StatusOnline {
				continue
			}
			if d := DistanceKm(center, e.point); d <= radiusKm {
				matches = append(matches, Match{DoctorID: id, DistanceKm: d})
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].DistanceKm != matches[j].DistanceKm {
			return matches[i].DistanceKm < matches[j].DistanceKm
		}
		return matches[i].DoctorID.String() < matches[j].DoctorID.String()
	})
	return matches
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// unbucket must be called with mu held.
func (ix *Index) unbucket(doctorID uuid.UUID, hash string) {
	for prec := uint(1); prec <= MaxPrecision; prec++ {
		key := hash[:prec]
		if set, ok := ix.buckets[prec][key]; ok {
			delete(set, doctorID)
			if len(set) == 0 {
				delete(ix.buckets[prec], key)
			}
		}
	}
}
