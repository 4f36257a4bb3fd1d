package schedule

import (
	"testing"
	"time"
)

func TestParseInterval(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 1, 1, 9, 3, 0, 0, time.UTC)
	tests := []struct {
		in      string
		source  string
		next    time.Time
		wantErr bool
	}{
		{in: "5m", source: "duration", next: base.Add(5 * time.Minute)},
		{in: "00:05", source: "hhmm", next: base.Add(5 * time.Minute)},
		{in: "01:30", source: "hhmm", next: base.Add(90 * time.Minute)},
		{in: "every:2m", source: "duration", next: base.Add(2 * time.Minute)},
		{in: "*/5 * * * *", source: "cron", next: time.Date(2024, 1, 1, 9, 5, 0, 0, time.UTC)},
		{in: "cron:0 * * * *", source: "cron", next: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		{in: "@every 10m", source: "cron", next: base.Add(10 * time.Minute)},
		{in: "", wantErr: true},
		{in: "soon", wantErr: true},
		{in: "0s", wantErr: true},
		{in: "00:61", wantErr: true},
		{in: "cron:", wantErr: true},
		{in: "* * *", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			iv, err := ParseInterval(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", iv)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInterval error: %v", err)
			}
			if iv.Source != tt.source {
				t.Fatalf("Source = %q, want %q", iv.Source, tt.source)
			}
			if got := iv.Next(base); !got.Equal(tt.next) {
				t.Fatalf("Next = %v, want %v", got, tt.next)
			}
		})
	}
}
