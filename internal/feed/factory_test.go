package feed

import "testing"

type nopVenue struct{}

func (nopVenue) NewStream(session Session, symbol string, kind EventKind, onData DataCallback, onError ErrorCallback) Stream {
	return nil
}

func TestFactoryRegisterAndNew(t *testing.T) {
	Register("test-venue-register", func() Venue { return nopVenue{} })

	venue, err := New(Description{Venue: "test-venue-register", Symbol: "btcusdt"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, ok := venue.(nopVenue); !ok {
		t.Fatalf("New returned %T, want nopVenue", venue)
	}
}

func TestFactoryRegisterDuplicatePanics(t *testing.T) {
	Register("test-venue-dup", func() Venue { return nopVenue{} })

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on duplicate registration")
		}
	}()
	Register("test-venue-dup", func() Venue { return nopVenue{} })
}

func TestFactoryNewUnknownVenue(t *testing.T) {
	if _, err := New(Description{Venue: "does-not-exist", Symbol: "btcusdt"}); err == nil {
		t.Fatal("expected an error for an unknown venue")
	}
}

func TestFactoryNewInvalidDescription(t *testing.T) {
	Register("test-venue-invalid", func() Venue { return nopVenue{} })

	if _, err := New(Description{Venue: "test-venue-invalid"}); err == nil {
		t.Fatal("expected an error for a description missing a required field")
	}
}
