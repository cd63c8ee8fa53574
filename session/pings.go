package session

import "time"

// PingSampleCount is how many round trips a session remembers.
const PingSampleCount = 5

// PingSample is one ConnectedPing/ConnectedPong exchange.
type PingSample struct {
	RoundTrip time.Duration
	// ClockDifferential estimates how far the remote clock runs ahead.
	ClockDifferential time.Duration
}

// Pings holds the most recent round-trip samples of a session.
type Pings struct {
	samples [PingSampleCount]PingSample
	next    int
	count   int
}

func (p *Pings) add(s PingSample) {
	p.samples[p.next] = s
	p.next = (p.next + 1) % PingSampleCount
	if p.count < PingSampleCount {
		p.count++
	}
}

// Len returns the number of recorded samples.
func (p Pings) Len() int {
	return p.count
}

// Samples returns the recorded samples, oldest first.
func (p Pings) Samples() []PingSample {
	out := make([]PingSample, 0, p.count)
	start := (p.next - p.count + PingSampleCount) % PingSampleCount
	for i := 0; i < p.count; i++ {
		out = append(out, p.samples[(start+i)%PingSampleCount])
	}
	return out
}

// Last returns the newest sample.
func (p Pings) Last() (PingSample, bool) {
	if p.count == 0 {
		return PingSample{}, false
	}
	return p.samples[(p.next-1+PingSampleCount)%PingSampleCount], true
}

// Average returns the mean round trip, or zero without samples.
func (p Pings) Average() time.Duration {
	if p.count == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range p.Samples() {
		total += s.RoundTrip
	}
	return total / time.Duration(p.count)
}

// Lowest returns the smallest round trip, or zero without samples.
func (p Pings) Lowest() time.Duration {
	if p.count == 0 {
		return 0
	}
	lowest := p.samples[0].RoundTrip
	for _, s := range p.Samples() {
		lowest = min(lowest, s.RoundTrip)
	}
	return lowest
}
