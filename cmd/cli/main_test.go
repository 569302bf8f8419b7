package main

import (
	"reflect"
	"testing"
)

func TestTrackMetaFromPath(t *testing.T) {
	tests := []struct {
		path, title, artist string
	}{
		{"/music/Daft Punk - Aerodynamic.mp3", "Aerodynamic", "Daft Punk"},
		{"lib/plain.wav", "plain", "Unknown"},
		{"lib/ - missing.wav", " - missing", "Unknown"},
		{"A - B - C.flac", "B - C", "A"},
	}
	for _, tt := range tests {
		title, artist := trackMetaFromPath(tt.path)
		if title != tt.title || artist != tt.artist {
			t.Errorf("%s: expected %q by %q, got %q by %q", tt.path, tt.title, tt.artist, title, artist)
		}
	}
}

func TestParseExtensions(t *testing.T) {
	got := parseExtensions("wav, .mp3,,FLAC")
	want := []string{".wav", ".mp3", ".FLAC"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestSplitPositional(t *testing.T) {
	pos, flags := splitPositional([]string{"song.mp3", "--title", "T", "--artist", "A"})
	if !reflect.DeepEqual(pos, []string{"song.mp3"}) {
		t.Errorf("Expected [song.mp3], got %v", pos)
	}
	if len(flags) != 4 {
		t.Errorf("Expected 4 flag args, got %v", flags)
	}

	pos, flags = splitPositional([]string{"a", "b"})
	if len(pos) != 2 || flags != nil {
		t.Errorf("Expected two positionals and no flags, got %v / %v", pos, flags)
	}
}
