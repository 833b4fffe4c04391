package availability

import (
	"errors"
	"testing"
)

func TestTimeToMinutes(t *testing.T) {
	cases := map[string]int{
		"00:00":    0,
		"09:00":    540,
		"9:30":     570,
		"17:30:00": 1050,
		"23:59":    1439,
		"24:00":    1440,
	}
	for in, want := range cases {
		got, err := TimeToMinutes(in)
		if err != nil {
			t.Fatalf("TimeToMinutes(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("TimeToMinutes(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestTimeToMinutesRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "9", "09-00", "ab:cd", "09:5", "24:30", "25:00", "09:60", "-1:00", "+9:00", "09:00:99", "09:00:00:00"} {
		if _, err := TimeToMinutes(in); !errors.Is(err, ErrInvalidTimeFormat) {
			t.Fatalf("TimeToMinutes(%q): expected ErrInvalidTimeFormat, got %v", in, err)
		}
	}
}

func TestMinutesToTime(t *testing.T) {
	cases := map[int]string{0: "00:00", 545: "09:05", 1439: "23:59", 1500: "25:00", -5: "00:00"}
	for in, want := range cases {
		if got := MinutesToTime(in); got != want {
			t.Fatalf("MinutesToTime(%d) = %q, want %q", in, got, want)
		}
	}
	for m := 0; m < minutesPerDay; m += 7 {
		back, err := TimeToMinutes(MinutesToTime(m))
		if err != nil || back != m {
			t.Fatalf("round trip %d -> %d (%v)", m, back, err)
		}
	}
}

func TestResolveDurationAndNormalizeTime(t *testing.T) {
	if ResolveDuration(0) != DefaultDurationMinutes || ResolveDuration(-10) != DefaultDurationMinutes || ResolveDuration(45) != 45 {
		t.Fatal("unexpected ResolveDuration")
	}
	if got, err := NormalizeTime("9:00:00"); err != nil || got != "09:00" {
		t.Fatalf("NormalizeTime: %q (%v)", got, err)
	}
	if _, err := NormalizeTime("24:00"); !errors.Is(err, ErrInvalidTimeFormat) {
		t.Fatalf("expected 24:00 to be rejected as a start time, got %v", err)
	}
}
