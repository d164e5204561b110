package geo

import (
	"math"
	"testing"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/presence"
	"github.com/google/uuid"
)

var bogota = Point{Latitude: 4.60, Longitude: -74.08}

// north returns a point km kilometres north of p.
func north(p Point, km float64) Point {
	return Point{Latitude: p.Latitude + km/(earthRadiusKm*math.Pi/180), Longitude: p.Longitude}
}

func TestDistanceKm(t *testing.T) {
	tests := []struct {
		name string
		a, b Point
		want float64
	}{
		{"same point", bogota, bogota, 0},
		{"one km north", bogota, north(bogota, 1), 1},
		{"three km north", bogota, north(bogota, 3), 3},
		{"bogota to medellin", bogota, Point{Latitude: 6.2442, Longitude: -75.5812}, 246},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1 && math.Abs(got-tt.want)/math.Max(tt.want, 1) > 0.01 {
				t.Fatalf("DistanceKm = %.3f, want about %.3f", got, tt.want)
			}
		})
	}
}

func TestCover_IncludesCenterCell(t *testing.T) {
	for _, radius := range []float64{0, 0.5, 3, 10, 40} {
		cells := Cover(bogota, radius, CellPrecision)
		center := Encode(bogota, CellPrecision)
		found := false
		for _, c := range cells {
			if len(c) != int(CellPrecision) {
				t.Fatalf("cell %q has wrong precision", c)
			}
			if c == center {
				found = true
			}
		}
		if !found {
			t.Fatalf("radius %.1f: cover %v does not include center cell %s", radius, cells, center)
		}
	}
}

func TestCover_IncludesCellsOfPointsInRadius(t *testing.T) {
	radius := 8.0
	cells := make(map[string]struct{})
	for _, c := range Cover(bogota, radius, CellPrecision) {
		cells[c] = struct{}{}
	}
	for bearing := 0.0; bearing < 360; bearing += 15 {
		rad := bearing * math.Pi / 180
		dLat := radius * 0.99 * math.Cos(rad) / kmPerDegree
		dLon := radius * 0.99 * math.Sin(rad) / (kmPerDegree * math.Cos(toRadians(bogota.Latitude)))
		p := Point{Latitude: bogota.Latitude + dLat, Longitude: bogota.Longitude + dLon}
		if _, ok := cells[Encode(p, CellPrecision)]; !ok {
			t.Fatalf("point at bearing %.0f (%v) not covered", bearing, p)
		}
	}
}

func TestPrecisionForRadius(t *testing.T) {
	if p := PrecisionForRadius(bogota, 0.1); p != MaxPrecision {
		t.Fatalf("small radius precision = %d, want %d", p, MaxPrecision)
	}
	if p := PrecisionForRadius(bogota, 3); p != 5 {
		t.Fatalf("3 km precision = %d, want 5", p)
	}
	if p := PrecisionForRadius(bogota, 20000); p != 1 {
		t.Fatalf("huge radius precision = %d, want 1", p)
	}
}

func TestIndex_EmptyQuery(t *testing.T) {
	ix := NewIndex()
	got := ix.Query(bogota, 10)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %v", got)
	}
}

func TestIndex_QueryFiltersByRadiusAndSortsByDistance(t *testing.T) {
	ix := NewIndex()
	near, mid, far := uuid.New(), uuid.New(), uuid.New()
	ix.Upsert(far, north(bogota, 12), presence.StatusOnline, 1)
	ix.Upsert(mid, north(bogota, 3), presence.StatusOnline, 1)
	ix.Upsert(near, north(bogota, 1), presence.StatusOnline, 1)

	got := ix.Query(bogota, 5)
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %v", got)
	}
	if got[0].DoctorID != near || got[1].DoctorID != mid {
		t.Fatalf("unexpected order: %v", got)
	}
	if math.Abs(got[0].DistanceKm-1) > 0.01 {
		t.Fatalf("near distance = %.3f", got[0].DistanceKm)
	}

	if got := ix.Query(bogota, 15); len(got) != 3 {
		t.Fatalf("expected 3 matches in 15 km, got %d", len(got))
	}
}

func TestIndex_ExcludesInServiceAndOffline(t *testing.T) {
	ix := NewIndex()
	online, busy, offline := uuid.New(), uuid.New(), uuid.New()
	ix.Upsert(online, north(bogota, 0.2), presence.StatusOnline, 1)
	ix.Upsert(busy, bogota, presence.StatusInService, 1)
	ix.Upsert(offline, bogota, presence.StatusOffline, 1)

	for _, radius := range []float64{0.5, 5, 50, 5000} {
		for _, m := range ix.Query(bogota, radius) {
			if m.DoctorID == busy || m.DoctorID == offline {
				t.Fatalf("radius %.1f: unavailable doctor %s returned", radius, m.DoctorID)
			}
		}
	}

	ix.Upsert(online, north(bogota, 0.2), presence.StatusInService, 2)
	if got := ix.Query(bogota, 5); len(got) != 0 {
		t.Fatalf("expected no matches once in service, got %v", got)
	}
}

func TestIndex_MoveAndRemove(t *testing.T) {
	ix := NewIndex()
	id := uuid.New()
	ix.Upsert(id, north(bogota, 30), presence.StatusOnline, 1)
	if got := ix.Query(bogota, 2); len(got) != 0 {
		t.Fatalf("doctor should be out of range, got %v", got)
	}

	ix.Upsert(id, north(bogota, 1), presence.StatusOnline, 2)
	if got := ix.Query(bogota, 2); len(got) != 1 {
		t.Fatalf("doctor should be in range after move, got %v", got)
	}
	if got := ix.Query(north(bogota, 30), 2); len(got) != 0 {
		t.Fatalf("old bucket still returns doctor: %v", got)
	}

	ix.Remove(id)
	if ix.Len() != 0 {
		t.Fatalf("expected empty index, got %d", ix.Len())
	}
	if got := ix.Query(bogota, 2); len(got) != 0 {
		t.Fatalf("removed doctor returned: %v", got)
	}
}

func TestIndex_NonPositiveRadius(t *testing.T) {
	ix := NewIndex()
	ix.Upsert(uuid.New(), bogota, presence.StatusOnline, 1)
	if got := ix.Query(bogota, 0); len(got) != 0 {
		t.Fatalf("expected empty result for zero radius, got %v", got)
	}
}

func TestIndex_DropsOlderPresenceVersions(t *testing.T) {
	ix := NewIndex()
	id := uuid.New()

	if !ix.Upsert(id, bogota, presence.StatusOnline, 3) {
		t.Fatalf("first write rejected")
	}
	if !ix.Apply(&presence.Presence{DoctorID: id, Status: presence.StatusInService, Latitude: bogota.Latitude, Longitude: bogota.Longitude, Version: 5}) {
		t.Fatalf("newer write rejected")
	}
	// a heartbeat read before the reservation lands late
	if ix.Upsert(id, north(bogota, 1), presence.StatusOnline, 4) {
		t.Fatalf("older write applied")
	}
	if got := ix.Query(bogota, 5); len(got) != 0 {
		t.Fatalf("in-service doctor returned after stale write: %v", got)
	}

	if !ix.Upsert(id, north(bogota, 1), presence.StatusOnline, 6) {
		t.Fatalf("newer write rejected")
	}
	if got := ix.Query(bogota, 5); len(got) != 1 || math.Abs(got[0].DistanceKm-1) > 0.01 {
		t.Fatalf("expected doctor back online 1 km away, got %v", got)
	}
}
