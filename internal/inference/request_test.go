package inference

import (
	"errors"
	"math"
	"testing"

	"github.com/samcharles93/phigo/internal/logits"
)

func ptr[T any](v T) *T { return &v }

func TestResolveRequestDefaults(t *testing.T) {
	t.Parallel()

	req, err := ResolveRequest(RequestOptions{Prompt: "p"}, Defaults{})
	if err != nil {
		t.Fatal(err)
	}
	if req.MaxTokens != DefaultMaxTokens || req.Temperature != 0 || req.Seed != 0 {
		t.Fatalf("unexpected request %+v", req)
	}

	req, err = ResolveRequest(RequestOptions{Prompt: "p"}, Defaults{Temperature: DefaultTemperature, MaxTokens: 64})
	if err != nil {
		t.Fatal(err)
	}
	if req.Prompt != "p" || req.MaxTokens != 64 || req.Temperature != DefaultTemperature {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestResolveRequestOverrides(t *testing.T) {
	t.Parallel()

	defaults := Defaults{Temperature: 0.7, MaxTokens: 100}
	tests := []struct {
		name    string
		opts    RequestOptions
		max     int
		temp    float64
		seed    int64
		wantErr error
	}{
		{name: "explicit values", opts: RequestOptions{MaxTokens: ptr(10), Temperature: ptr(0.0), Seed: ptr(int64(5))}, max: 10, temp: 0, seed: 5},
		{name: "max tokens clamped", opts: RequestOptions{MaxTokens: ptr(5000)}, max: 100, temp: 0.7},
		{name: "zero max tokens", opts: RequestOptions{MaxTokens: ptr(0)}, wantErr: ErrInvalidMaxTokens},
		{name: "negative max tokens", opts: RequestOptions{MaxTokens: ptr(-3)}, wantErr: ErrInvalidMaxTokens},
		{name: "negative temperature", opts: RequestOptions{Temperature: ptr(-0.5)}, wantErr: logits.ErrInvalidSamplingParameter},
		{name: "nan temperature", opts: RequestOptions{Temperature: ptr(math.NaN())}, wantErr: logits.ErrInvalidSamplingParameter},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req, err := ResolveRequest(tc.opts, defaults)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if req.MaxTokens != tc.max || req.Temperature != tc.temp || req.Seed != tc.seed {
				t.Fatalf("got %+v", req)
			}
		})
	}
}

func TestSeedSource(t *testing.T) {
	t.Parallel()

	a, b := NewSeedSource(9), NewSeedSource(9)
	seen := make(map[int64]bool)
	for i := 0; i < 100; i++ {
		x, y := a.Next(), b.Next()
		if x != y {
			t.Fatalf("draw %d: %d != %d", i, x, y)
		}
		if seen[x] {
			t.Fatalf("draw %d repeated seed %d", i, x)
		}
		seen[x] = true
	}
	if NewSeedSource(10).Next() == NewSeedSource(9).Next() {
		t.Fatal("different bases produced the same first seed")
	}

	req, err := ResolveRequest(RequestOptions{}, Defaults{Seeds: NewSeedSource(9)})
	if err != nil {
		t.Fatal(err)
	}
	if want := NewSeedSource(9).Next(); req.Seed != want {
		t.Fatalf("seed = %d, want %d", req.Seed, want)
	}
}
