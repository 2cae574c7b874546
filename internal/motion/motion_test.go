package motion

import (
	"sync"
	"testing"
)

func TestStoreStartsAtZero(t *testing.T) {
	var s Store
	accel, gyro := s.Snapshot()
	if accel != (Sample{}) || gyro != (Sample{}) {
		t.Fatalf("Snapshot() = %v, %v, want zero samples", accel, gyro)
	}
}

func TestStoreRecordLastValueWins(t *testing.T) {
	s := NewStore()
	s.Record(Event{Kind: Accelerometer, Sample: Sample{1, 2, 3}})
	s.Record(Event{Kind: Accelerometer, Sample: Sample{4, 5, 6}})
	s.Record(Event{Kind: Gyroscope, Sample: Sample{0.1, 0.2, 0.3}})
	s.Record(Event{Kind: Kind(42), Sample: Sample{9, 9, 9}})

	accel, gyro := s.Snapshot()
	if want := (Sample{4, 5, 6}); accel != want {
		t.Errorf("accel = %v, want %v", accel, want)
	}
	if want := (Sample{0.1, 0.2, 0.3}); gyro != want {
		t.Errorf("gyro = %v, want %v", gyro, want)
	}
}

func TestStoreSensorsAreIndependent(t *testing.T) {
	s := NewStore()
	s.RecordGyro(Sample{1, 1, 1})
	accel, _ := s.Snapshot()
	if accel != (Sample{}) {
		t.Fatalf("accel changed by gyro write: %v", accel)
	}
}

// Writers always store samples whose three axes are equal, so a reader
// observing unequal axes saw a half-written sample.
func TestStoreNoTornSamples(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for _, kind := range []Kind{Accelerometer, Gyroscope} {
		wg.Add(1)
		go func(k Kind) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				v := float32(i % 1000)
				s.Record(Event{Kind: k, Sample: Sample{v, v, v}})
			}
		}(kind)
	}

	for i := 0; i < 10000; i++ {
		accel, gyro := s.Snapshot()
		for _, smp := range []Sample{accel, gyro} {
			if smp.X != smp.Y || smp.Y != smp.Z {
				close(stop)
				wg.Wait()
				t.Fatalf("torn sample observed: %v", smp)
			}
		}
	}
	close(stop)
	wg.Wait()
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{Accelerometer, "accelerometer"},
		{Gyroscope, "gyroscope"},
		{Kind(7), "kind(7)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(tt.kind), got, tt.want)
		}
	}
}
