package cache

import (
	"net/http"
	"testing"
	"time"
)

func TestEntry_Age(t *testing.T) {
	tests := []struct {
		name     string
		cachedAt time.Time
		wantMin  time.Duration
		wantMax  time.Duration
	}{
		{
			name:     "never cached",
			cachedAt: time.Time{},
			wantMin:  0,
			wantMax:  0,
		},
		{
			name:     "cached an hour ago",
			cachedAt: time.Now().Add(-1 * time.Hour),
			wantMin:  59 * time.Minute,
			wantMax:  61 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{CachedAt: tt.cachedAt}
			got := entry.Age()
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("Age() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestEntry_Clone(t *testing.T) {
	entry := &Entry{
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": []string{"text/html"}},
		Body:       []byte("<p>hi</p>"),
	}

	clone := entry.Clone()
	clone.Headers.Set("Content-Type", "text/plain")
	clone.Body[0] = 'X'

	if entry.Headers.Get("Content-Type") != "text/html" {
		t.Error("Clone shares header map with original")
	}
	if string(entry.Body) != "<p>hi</p>" {
		t.Error("Clone shares body with original")
	}
	if entry.Size() != 9 {
		t.Errorf("Size() = %d, want 9", entry.Size())
	}

	var nilEntry *Entry
	if nilEntry.Clone() != nil {
		t.Error("Clone of nil entry should be nil")
	}
}
