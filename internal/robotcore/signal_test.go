package robotcore

import "testing"

func TestSignalFireOnce(t *testing.T) {
	s := newSignal()
	s.Fire(nil)
	s.Fire(newFailedError("ignored"))

	select {
	case <-s.Done():
	default:
		t.Fatal("expected signal to be done")
	}
	if s.Err() != nil {
		t.Fatalf("first Fire should win, got err %v", s.Err())
	}
}

func TestSignalFireWithError(t *testing.T) {
	s := newSignal()
	want := newAbortedError("stopped")
	s.Fire(want)
	if s.Err() != want {
		t.Fatalf("Err() = %v, want %v", s.Err(), want)
	}
}
