package object

import "testing"

func TestThumbnailKey(t *testing.T) {
	cases := map[string]string{
		"projects/p1/logo.png":   "projects/p1/logo_thumb.jpg",
		"projects/p1/archive":    "projects/p1/archive_thumb.jpg",
		"projects/p1/a.b.c.jpeg": "projects/p1/a.b.c_thumb.jpg",
	}
	for in, want := range cases {
		if got := ThumbnailKey(in); got != want {
			t.Errorf("ThumbnailKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanKey(t *testing.T) {
	if got := cleanKey("  /projects/p1/x.pdf "); got != "projects/p1/x.pdf" {
		t.Errorf("cleanKey = %q, want %q", got, "projects/p1/x.pdf")
	}
}
