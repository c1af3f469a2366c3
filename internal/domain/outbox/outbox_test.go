package outbox

import (
	"errors"
	"math"
	"testing"
	"time"

	domainerrors "github.com/jbctechsolutions/scribesync/internal/domain/errors"
)

func TestConnectionStatus_Meets(t *testing.T) {
	tests := []struct {
		status ConnectionStatus
		min    ConnectionStatus
		want   bool
	}{
		{StatusOnline, StatusOnline, true},
		{StatusDegraded, StatusOnline, false},
		{StatusOffline, StatusOnline, false},
		{StatusOnline, StatusDegraded, true},
		{StatusDegraded, StatusDegraded, true},
		{StatusOffline, StatusDegraded, false},
		{StatusOffline, StatusOffline, true},
		{ConnectionStatus("bogus"), StatusDegraded, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status)+"_"+string(tt.min), func(t *testing.T) {
			if got := tt.status.Meets(tt.min); got != tt.want {
				t.Errorf("%s.Meets(%s) = %v, want %v", tt.status, tt.min, got, tt.want)
			}
		})
	}
}

func TestParseConnectionStatus(t *testing.T) {
	got, err := ParseConnectionStatus(" Degraded ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != StatusDegraded {
		t.Errorf("got %q, want %q", got, StatusDegraded)
	}

	_, err = ParseConnectionStatus("flaky")
	if !errors.Is(err, domainerrors.ErrInvalidConnectionQuality) {
		t.Errorf("expected ErrInvalidConnectionQuality, got %v", err)
	}
}

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, 0},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
	}

	for _, tt := range tests {
		if got := BackoffDelay(base, tt.retry); got != tt.want {
			t.Errorf("BackoffDelay(%v, %d) = %v, want %v", base, tt.retry, got, tt.want)
		}
	}
}

func TestBackoffDelay_StrictlyIncreasing(t *testing.T) {
	prev := time.Duration(0)
	for i := 1; i <= 20; i++ {
		d := BackoffDelay(10*time.Millisecond, i)
		if d <= prev {
			t.Fatalf("delay for attempt %d (%v) not greater than previous (%v)", i, d, prev)
		}
		prev = d
	}
}

func TestBackoffDelay_CapsShift(t *testing.T) {
	if got := BackoffDelay(time.Nanosecond, 1000); got <= 0 {
		t.Errorf("expected positive capped delay, got %v", got)
	}
}

func TestBackoffDelay_Saturates(t *testing.T) {
	const longest = time.Duration(math.MaxInt64)
	tests := []struct {
		name    string
		base    time.Duration
		retries int
		want    time.Duration
	}{
		{name: "ten seconds at 40 retries", base: 10 * time.Second, retries: 40, want: longest},
		{name: "one hour at 31 retries", base: time.Hour, retries: 31, want: longest},
		{name: "largest base", base: longest, retries: 2, want: longest},
		{name: "largest base first retry", base: longest, retries: 1, want: longest},
		{name: "exact fit", base: time.Duration(1) << 32, retries: 31, want: time.Duration(1) << 62},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BackoffDelay(tt.base, tt.retries); got != tt.want {
				t.Errorf("BackoffDelay(%v, %d) = %v, want %v", tt.base, tt.retries, got, tt.want)
			}
		})
	}

	prev := time.Duration(0)
	for retries := 1; retries <= 64; retries++ {
		got := BackoffDelay(10*time.Second, retries)
		if got < prev {
			t.Fatalf("BackoffDelay(10s, %d) = %v, below %v at the previous count", retries, got, prev)
		}
		prev = got
	}
}

func TestItem_Exhausted(t *testing.T) {
	item := Item{ID: "a", RetryCount: 2}
	if item.Exhausted(3) {
		t.Error("2 of 3 retries should not be exhausted")
	}
	item.RetryCount = 3
	if !item.Exhausted(3) {
		t.Error("3 of 3 retries should be exhausted")
	}
}

func TestUpload_SyncableAndClone(t *testing.T) {
	u := NewUpload("id-1", "recordings", "/tmp/a.webm", "audio/webm", 42)
	u.Metadata["patient_ref"] = "p-7"

	var s Syncable = u
	if s.SyncID() != "id-1" || s.Retries() != 0 {
		t.Errorf("unexpected syncable view: %s %d", s.SyncID(), s.Retries())
	}

	c := u.Clone()
	c.Metadata["patient_ref"] = "changed"
	c.RetryCount = 5
	if u.Metadata["patient_ref"] != "p-7" {
		t.Error("clone shares metadata map with original")
	}
	if u.RetryCount != 0 {
		t.Error("clone shares retry count with original")
	}
}

func TestEvent_Terminal(t *testing.T) {
	for _, tt := range []struct {
		typ  EventType
		want bool
	}{
		{EventStart, false},
		{EventProgress, false},
		{EventComplete, true},
		{EventError, true},
	} {
		if got := (Event{Type: tt.typ}).Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.typ, got, tt.want)
		}
	}
}
