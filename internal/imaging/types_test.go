package imaging

import "testing"

func TestFrameStackMean(t *testing.T) {
	cases := []struct {
		name   string
		values []uint16
		want   uint16
	}{
		{"single frame", []uint16{500}, 500},
		{"exact mean", []uint16{1000, 1002, 1004, 1006}, 1003},
		{"rounds to nearest", []uint16{1, 2}, 2}, // (1+2+1)/2 = 2, matches round-half-up
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			stack := NewFrameStack(len(c.values))
			for _, v := range c.values {
				img := NewRawImage(1, 1)
				img.Set(0, 0, v)
				if err := stack.Push(img); err != nil {
					t.Fatalf("Push: %v", err)
				}
			}
			mean, err := stack.Mean()
			if err != nil {
				t.Fatalf("Mean: %v", err)
			}
			if got := mean.At(0, 0); got != c.want {
				t.Errorf("Mean() = %d, want %d", got, c.want)
			}
		})
	}
}

func TestFrameStackMeanEmpty(t *testing.T) {
	stack := NewFrameStack(0)
	if _, err := stack.Mean(); err == nil {
		t.Error("expected error reducing an empty stack")
	}
}

func TestFrameStackPushDimensionMismatch(t *testing.T) {
	stack := NewFrameStack(2)
	if err := stack.Push(NewRawImage(4, 4)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := stack.Push(NewRawImage(2, 2)); err == nil {
		t.Error("expected dimension mismatch error")
	}
}
