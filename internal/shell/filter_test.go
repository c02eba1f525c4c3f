package shell

import (
	"testing"

	"github.com/danmuck/matterctl/internal/testutil/testlog"
)

func TestFilterOutput(t *testing.T) {
	testlog.Start(t)
	markers := DefaultNoiseMarkers(DefaultReadyMarker)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "empty",
			raw:  "",
			want: "",
		},
		{
			name: "only noise",
			raw:  "[INFO] Node started\n[WARN] low battery\n>>> \n\n   \n",
			want: "",
		},
		{
			name: "keeps payload between noise",
			raw:  "[NOTICE] History loaded\n  OnOff: TRUE  \n>>> quit\nStorage path: /tmp/chip\n",
			want: "OnOff: TRUE",
		},
		{
			name: "preserves inner indentation and order",
			raw:  "Node 0x12\n  endpoint 1\nOpened file /tmp/kvs\nNode 0x13\n",
			want: "Node 0x12\n  endpoint 1\nNode 0x13",
		},
		{
			name: "marker anywhere in line drops it",
			raw:  "value true [INFO]\nvalue false\n",
			want: "value false",
		},
		{
			name: "loaded module",
			raw:  "Loaded module libchip\nresult ok",
			want: "result ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterOutput(tt.raw, markers)
			if got != tt.want {
				t.Fatalf("unexpected filtered output\nwant: %q\ngot:  %q", tt.want, got)
			}
		})
	}
}

func TestFilterOutputIdempotent(t *testing.T) {
	testlog.Start(t)
	markers := DefaultNoiseMarkers(DefaultReadyMarker)
	inputs := []string{
		"",
		"\n\n",
		"[INFO] a\nb\n\n c \n>>> d\n",
		"  leading\ntrailing  \n",
		"x\r\ny\r\n",
	}
	for _, raw := range inputs {
		once := FilterOutput(raw, markers)
		twice := FilterOutput(once, markers)
		if once != twice {
			t.Fatalf("filter not idempotent for %q: %q != %q", raw, once, twice)
		}
	}
}

func TestNoiseWithReadyAddsReadyMarker(t *testing.T) {
	testlog.Start(t)
	got := noiseWithReady([]string{"[DBG]", ""}, "$ ")
	if len(got) != 2 || got[0] != "[DBG]" || got[1] != "$ " {
		t.Fatalf("unexpected noise markers: %q", got)
	}
	if got := noiseWithReady(nil, "$ "); len(got) != len(DefaultNoiseMarkers("$ ")) {
		t.Fatalf("expected default markers, got %q", got)
	}
}
