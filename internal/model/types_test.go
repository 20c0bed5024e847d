package model

import "testing"

func TestBucketForHour(t *testing.T) {
	cases := map[int]Bucket{
		0: Evening, 4: Evening, 5: Morning, 11: Morning,
		12: Noon, 17: Noon, 18: Evening, 23: Evening,
	}
	for h, want := range cases {
		if got := BucketForHour(h); got != want {
			t.Fatalf("hour %d: got %s want %s", h, got, want)
		}
	}
}
