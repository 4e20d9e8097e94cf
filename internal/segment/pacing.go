package segment

import (
	"math/rand"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	baseDelayMs    = 300
	perRuneDelayMs = 55
	maxDelayMs     = 2200
	delayJitterMs  = 200

	typingBaseMs   = 350
	typingJitterMs = 250
)

// Pacer produces delivery delays for bubbles. Delays grow with bubble
// length up to a ceiling, with jitter so replies never feel metronomic.
type Pacer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPacer returns a Pacer seeded from the wall clock.
func NewPacer() *Pacer {
	return &Pacer{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// BubbleDelay returns how long to wait before showing a bubble:
// min(300 + 55·len, 2200) ms plus jitter.
func (p *Pacer) BubbleDelay(bubble string) time.Duration {
	return time.Duration(BaseDelayMillis(bubble)+p.intn(delayJitterMs)) * time.Millisecond
}

// TypingDuration returns how long the typing indicator shows between
// bubbles: 350±250 ms.
func (p *Pacer) TypingDuration() time.Duration {
	return time.Duration(typingBaseMs-typingJitterMs+p.intn(2*typingJitterMs)) * time.Millisecond
}

// BaseDelayMillis is the deterministic part of the bubble delay.
func BaseDelayMillis(bubble string) int {
	ms := baseDelayMs + perRuneDelayMs*utf8.RuneCountInString(bubble)
	if ms > maxDelayMs {
		return maxDelayMs
	}
	return ms
}

func (p *Pacer) intn(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Intn(n + 1)
}
