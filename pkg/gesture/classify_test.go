package gesture

import "testing"

func sample(dx, dy float64) Sample {
	sh := Point{X: 0.5, Y: 0.4}
	return Sample{Shoulder: sh, Wrist: Point{X: sh.X + dx, Y: sh.Y + dy}}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		dx, dy float64
		want   Code
	}{
		{"centered", 0.01, -0.02, Back},
		{"centered negative", -0.049, 0.049, Back},
		{"raised", 0.02, -0.3, Raised},
		{"raised wins over lateral when dx small", -0.09, -0.2, Raised},
		{"right", -0.2, 0.1, Right},
		{"left", 0.2, 0.1, Left},
		{"raised but too wide is lateral", 0.3, -0.3, Left},
		{"hanging down", 0.0, 0.3, Still},
		{"between regions", 0.12, 0.0, Still},
		{"just inside lateral", 0.149, 0.2, Still},
	}

	for _, tt := range tests {
		for _, arm := range Arms() {
			got := Classify(arm, sample(tt.dx, tt.dy))
			if got != tt.want {
				t.Errorf("%s/%s: Classify(dx=%.3f, dy=%.3f) = %s, want %s", tt.name, arm, tt.dx, tt.dy, got, tt.want)
			}
		}
	}
}

func TestClassify_CenteredRegion(t *testing.T) {
	for i := -9; i <= 9; i++ {
		for j := -9; j <= 9; j++ {
			dx, dy := float64(i)*0.005, float64(j)*0.005
			for _, arm := range Arms() {
				if got := Classify(arm, sample(dx, dy)); got != Back {
					t.Fatalf("Classify(%s, dx=%.3f, dy=%.3f) = %s, want back", arm, dx, dy, got)
				}
			}
		}
	}
}

func TestClassify_Pure(t *testing.T) {
	c := NewClassifier(false)
	s := sample(-0.17, 0.02)
	first := c.Classify(LeftArm, s)
	for i := 0; i < 100; i++ {
		if got := c.Classify(LeftArm, s); got != first {
			t.Fatalf("iteration %d: got %s, want %s", i, got, first)
		}
	}
}

func TestClassify_Mirror(t *testing.T) {
	c := NewClassifier(true)
	if got := c.Classify(LeftArm, sample(-0.2, 0)); got != Left {
		t.Errorf("mirrored dx<0 = %s, want left", got)
	}
	if got := c.Classify(RightArm, sample(0.2, 0)); got != Right {
		t.Errorf("mirrored dx>0 = %s, want right", got)
	}
	if got := c.Classify(RightArm, sample(0, -0.3)); got != Raised {
		t.Errorf("mirror must not affect raised, got %s", got)
	}
}

func TestCode_Label(t *testing.T) {
	tests := []struct {
		arm  Arm
		code Code
		want string
	}{
		{LeftArm, Raised, "Forward"},
		{RightArm, Raised, "Up"},
		{LeftArm, Back, "Back"},
		{RightArm, Back, "Down"},
		{RightArm, Still, "Still"},
		{LeftArm, Code(42), "?"},
	}
	for _, tt := range tests {
		if got := tt.code.Label(tt.arm); got != tt.want {
			t.Errorf("%s.Label(%s) = %q, want %q", tt.code, tt.arm, got, tt.want)
		}
	}
}
