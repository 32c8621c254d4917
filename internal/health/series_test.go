package health

import (
	"testing"
	"time"
)

func sampleAt(i int, mb float64) Sample {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	return Sample{At: base.Add(time.Duration(i) * 30 * time.Second), MemoryMB: mb}
}

func TestSeriesRetainsCapNewest(t *testing.T) {
	s := NewSeries(2880)
	total := 3000
	for i := 0; i < total; i++ {
		s.Add(sampleAt(i, float64(i)))
	}
	if s.Len() != 2880 {
		t.Fatalf("len = %d, want 2880", s.Len())
	}
	all := s.All()
	if got := all[0].MemoryMB; got != float64(total-2880) {
		t.Fatalf("oldest retained = %.0f, want %d", got, total-2880)
	}
	if got := all[len(all)-1].MemoryMB; got != float64(total-1) {
		t.Fatalf("newest retained = %.0f, want %d", got, total-1)
	}
}

func TestSeriesLast(t *testing.T) {
	s := NewSeries(10)
	if _, ok := s.Last(); ok {
		t.Fatal("Last on empty series should report !ok")
	}
	s.Add(sampleAt(0, 100))
	s.Add(sampleAt(1, 200))
	last, ok := s.Last()
	if !ok || last.MemoryMB != 200 {
		t.Fatalf("Last = %+v ok=%v, want 200", last, ok)
	}
}

func TestSeriesFromEnd(t *testing.T) {
	s := NewSeries(100)
	for i := 0; i < 5; i++ {
		s.Add(sampleAt(i, float64(i*10)))
	}

	smp, n, ok := s.FromEnd(0)
	if !ok || n != 0 || smp.MemoryMB != 40 {
		t.Fatalf("FromEnd(0) = %+v n=%d ok=%v", smp, n, ok)
	}

	smp, n, ok = s.FromEnd(3)
	if !ok || n != 3 || smp.MemoryMB != 10 {
		t.Fatalf("FromEnd(3) = %+v n=%d ok=%v", smp, n, ok)
	}

	// Asking past the start clamps to the oldest and reports the
	// actual distance.
	smp, n, ok = s.FromEnd(60)
	if !ok || n != 4 || smp.MemoryMB != 0 {
		t.Fatalf("FromEnd(60) = %+v n=%d ok=%v, want oldest at distance 4", smp, n, ok)
	}
}

func TestSeriesFromEndEmpty(t *testing.T) {
	s := NewSeries(10)
	if _, _, ok := s.FromEnd(0); ok {
		t.Fatal("FromEnd on empty series should report !ok")
	}
}

func TestSeriesWrapAround(t *testing.T) {
	s := NewSeries(3)
	for i := 0; i < 7; i++ {
		s.Add(sampleAt(i, float64(i)))
	}
	all := s.All()
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	for i, want := range []float64{4, 5, 6} {
		if all[i].MemoryMB != want {
			t.Fatalf("all[%d] = %.0f, want %.0f", i, all[i].MemoryMB, want)
		}
	}
}
