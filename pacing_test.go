package main

import (
	"testing"
	"time"
)

type testLogger struct {
	t *testing.T
}

func (l *testLogger) Log(format string, args ...any) {
	l.t.Logf(format, args...)
}

func TestParsePacingTable(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []PacingRule
		wantErr bool
	}{
		{
			name:  "single rule",
			input: "100,5",
			want:  []PacingRule{{Every: 100, SleepSeconds: 5}},
		},
		{
			name:  "later rules take priority",
			input: "100,5;200,10",
			want: []PacingRule{
				{Every: 200, SleepSeconds: 10},
				{Every: 100, SleepSeconds: 5},
			},
		},
		{
			name:  "trailing semicolon",
			input: "25,5;100,30;",
			want: []PacingRule{
				{Every: 100, SleepSeconds: 30},
				{Every: 25, SleepSeconds: 5},
			},
		},
		{name: "empty", input: "", wantErr: true},
		{name: "missing sleep", input: "100", wantErr: true},
		{name: "non-numeric", input: "a,b", wantErr: true},
		{name: "zero count", input: "0,5", wantErr: true},
		{name: "negative sleep", input: "10,-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePacingTable(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d rules, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("rule %d: got %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// newTestPacer returns a pacer whose sleeps are recorded rather than slept.
func newTestPacer(t *testing.T, table string) (*Pacer, *[]time.Duration) {
	t.Helper()
	rules, err := ParsePacingTable(table)
	if err != nil {
		t.Fatalf("parse table: %v", err)
	}
	p := NewPacer(rules, &testLogger{t})
	var slept []time.Duration
	p.sleep = func(d time.Duration) { slept = append(slept, d) }
	return p, &slept
}

func TestPacerFirstRequestNeverSleeps(t *testing.T) {
	p, slept := newTestPacer(t, "1,10")
	p.RequestDispatched()
	if len(*slept) != 0 {
		t.Fatalf("first request slept %d ticks", len(*slept))
	}
}

func TestPacerHighestPriorityRuleWins(t *testing.T) {
	p, slept := newTestPacer(t, "100,5;200,10")

	ticksAt := make(map[int]int)
	for i := 1; i <= 200; i++ {
		before := len(*slept)
		p.RequestDispatched()
		if n := len(*slept) - before; n > 0 {
			ticksAt[i] = n
		}
	}

	// Only the two modulus hits suspend, each firing exactly one rule.
	if len(ticksAt) != 2 {
		t.Fatalf("suspensions at %v, want exactly requests 100 and 200", ticksAt)
	}
	if ticksAt[100] != 5 {
		t.Errorf("request 100 slept %d ticks, want 5", ticksAt[100])
	}
	// At 200 both rules match; the later-declared 200,10 rule wins.
	if ticksAt[200] != 10 {
		t.Errorf("request 200 slept %d ticks, want 10", ticksAt[200])
	}
}

func TestPacerJitterBounds(t *testing.T) {
	p, slept := newTestPacer(t, "2,3")
	p.RequestDispatched()
	p.RequestDispatched() // modulus hit

	if len(*slept) != 3 {
		t.Fatalf("slept %d ticks, want 3", len(*slept))
	}
	for i, d := range *slept {
		if d < time.Second+10*time.Millisecond || d > time.Second+100*time.Millisecond {
			t.Errorf("tick %d: %v out of the 1.01s-1.10s jitter range", i, d)
		}
	}
}

func TestPacerCount(t *testing.T) {
	p, _ := newTestPacer(t, "1000,1")
	for i := 0; i < 7; i++ {
		p.RequestDispatched()
	}
	if got := p.Count(); got != 7 {
		t.Fatalf("Count() = %d, want 7", got)
	}
}
