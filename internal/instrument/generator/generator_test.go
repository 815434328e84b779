package generator

import (
	"errors"
	"math"
	"testing"
)

type recorder struct {
	writes []string
}

func (r *recorder) Attach(string) error          { return nil }
func (r *recorder) Detach() error                { return nil }
func (r *recorder) Query(string) (string, error) { return "Rigol Technologies,DG1022Z\n", nil }
func (r *recorder) Write(cmd string) error {
	r.writes = append(r.writes, cmd)
	return nil
}

func ptr(v float64) *float64 { return &v }

func TestWrapPhase(t *testing.T) {
	testCases := []struct {
		in, want float64
	}{
		{0, 0},
		{90, 90},
		{360, 0},
		{450, 90},
		{-90, 270},
		{-360, 0},
		{-720.5, 359.5},
		{1e-12 - 360, 1e-12},
	}

	for _, tc := range testCases {
		got := WrapPhase(tc.in)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("WrapPhase(%g): expected %g, got %g", tc.in, tc.want, got)
		}
		if got < 0 || got >= 360 {
			t.Errorf("WrapPhase(%g) = %g is outside [0, 360)", tc.in, got)
		}
	}
}

func TestSetChannel(t *testing.T) {
	testCases := []struct {
		name     string
		ch       Channel
		settings Settings
		want     []string
	}{
		{
			name:     "all fields",
			ch:       CH1,
			settings: Settings{Frequency: ptr(1000), Vpp: ptr(1), Offset: ptr(0.5), Phase: ptr(-90)},
			want:     []string{":SOUR1:FREQ 1000", ":SOUR1:VOLT 1", ":SOUR1:VOLT:OFFS 0.5", ":SOUR1:PHAS 270"},
		},
		{
			name:     "frequency only",
			ch:       CH2,
			settings: Settings{Frequency: ptr(12500)},
			want:     []string{":SOUR2:FREQ 12500"},
		},
		{
			name:     "nothing",
			ch:       CH1,
			settings: Settings{},
			want:     nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := &recorder{}
			if err := New(r).SetChannel(tc.ch, tc.settings); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(r.writes) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, r.writes)
			}
			for i := range tc.want {
				if r.writes[i] != tc.want[i] {
					t.Errorf("write %d: expected %q, got %q", i, tc.want[i], r.writes[i])
				}
			}
		})
	}
}

func TestCommands(t *testing.T) {
	r := &recorder{}
	g := New(r)

	if err := g.Attach("192.168.0.198:5555"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.SetOutput(CH2, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.Align(CH1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		":SOUR1:APPL:SIN 1000,1,0,0",
		":SOUR2:APPL:SIN 1000,1,0,90",
		":OUTP2 ON",
		":SOUR1:PHAS:SYNC",
	}
	for i := range want {
		if r.writes[i] != want[i] {
			t.Errorf("write %d: expected %q, got %q", i, want[i], r.writes[i])
		}
	}

	if err := g.SetFrequency(Channel(3), 1000); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("expected ErrInvalidChannel, got %v", err)
	}
	if err := g.SetVpp(CH1, math.NaN()); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue, got %v", err)
	}
	if id, err := g.Identify(); err != nil || id != "Rigol Technologies,DG1022Z" {
		t.Errorf("unexpected identity %q (%v)", id, err)
	}
}
