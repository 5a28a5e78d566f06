package transport

import (
	"sort"
	"time"

	"github.com/rns-go/reticulum/identity"
)

// announceBudgetFraction is the share of an interface's nominal bandwidth
// that aggregate announce bytes may consume, measured over a sliding window
// (spec.md §4.2: "2% of the interface's nominal bandwidth").
const announceBudgetFraction = 0.02

// forwardBudgetFraction is the share of an interface's nominal bandwidth
// that forwarded (routed, non-local) data traffic may consume over the same
// sliding window. Defaults to the full nominal rate: forwarding is only
// rate-limited once it would saturate the link, not pre-emptively capped
// the way announces are.
const forwardBudgetFraction = 1.0

// rateWindow is the sliding window over which the announce budget is measured.
const rateWindow = 60 * time.Second

// announceQueueTTL is how long a queued (budget-exceeded) announce is kept
// before being aged out (spec.md §4.2).
const announceQueueTTL = 24 * time.Hour

type queuedAnnounce struct {
	packetHash [identity.HashLen]byte
	frame      []byte
	hops       uint8
	arrival    time.Time
}

// interfaceLimiter tracks one interface's announce-byte and forwarded-byte
// budgets as a sliding window of timestamped byte counts, plus its
// hops-then-arrival sorted announce backlog.
type interfaceLimiter struct {
	nominalBPS float64

	announceSamples []sample
	forwardSamples  []sample

	queue []queuedAnnounce
}

type sample struct {
	at    time.Time
	bytes int
}

func newInterfaceLimiter(nominalBPS float64) *interfaceLimiter {
	return &interfaceLimiter{nominalBPS: nominalBPS}
}

func (l *interfaceLimiter) prune(now time.Time) {
	l.announceSamples = pruneSamples(l.announceSamples, now)
	l.forwardSamples = pruneSamples(l.forwardSamples, now)
}

func pruneSamples(samples []sample, now time.Time) []sample {
	idx := 0
	for idx < len(samples) && now.Sub(samples[idx].at) > rateWindow {
		idx++
	}
	return samples[idx:]
}

func sumBytes(samples []sample) int {
	total := 0
	for _, s := range samples {
		total += s.bytes
	}
	return total
}

// announceBudgetBytes is the number of announce bytes allowed over rateWindow.
func (l *interfaceLimiter) announceBudgetBytes() int {
	return int(l.nominalBPS / 8 * announceBudgetFraction * rateWindow.Seconds())
}

// admitAnnounce reports whether n bytes of announce traffic fit within
// budget right now; if so it records the sample.
func (l *interfaceLimiter) admitAnnounce(now time.Time, n int) bool {
	l.prune(now)
	if sumBytes(l.announceSamples)+n > l.announceBudgetBytes() {
		return false
	}
	l.announceSamples = append(l.announceSamples, sample{at: now, bytes: n})
	return true
}

// enqueue adds a budget-exceeded announce to the per-interface backlog,
// keeping it sorted by (hops ascending, arrival ascending).
func (l *interfaceLimiter) enqueue(q queuedAnnounce) {
	l.queue = append(l.queue, q)
	sort.SliceStable(l.queue, func(i, j int) bool {
		if l.queue[i].hops != l.queue[j].hops {
			return l.queue[i].hops < l.queue[j].hops
		}
		return l.queue[i].arrival.Before(l.queue[j].arrival)
	})
}

// ageOutQueue drops queued announces older than announceQueueTTL.
func (l *interfaceLimiter) ageOutQueue(now time.Time) {
	kept := l.queue[:0]
	for _, q := range l.queue {
		if now.Sub(q.arrival) < announceQueueTTL {
			kept = append(kept, q)
		}
	}
	l.queue = kept
}

// drainQueue pops as many queued announces as currently fit in budget.
func (l *interfaceLimiter) drainQueue(now time.Time) []queuedAnnounce {
	var sent []queuedAnnounce
	remaining := l.queue[:0]
	for i, q := range l.queue {
		if l.admitAnnounce(now, len(q.frame)) {
			sent = append(sent, q)
		} else {
			remaining = append(remaining, l.queue[i])
		}
	}
	l.queue = remaining
	return sent
}

// forwardBudgetBytes is the number of forwarded-data bytes allowed over rateWindow.
func (l *interfaceLimiter) forwardBudgetBytes() int {
	return int(l.nominalBPS / 8 * forwardBudgetFraction * rateWindow.Seconds())
}

// admitForward reports whether n bytes of forwarded (routed) traffic fit
// within the interface's forward budget right now; if so it records the
// sample (spec.md §4.2 "(b) forwarded bytes" token bucket).
func (l *interfaceLimiter) admitForward(now time.Time, n int) bool {
	l.prune(now)
	if sumBytes(l.forwardSamples)+n > l.forwardBudgetBytes() {
		return false
	}
	l.forwardSamples = append(l.forwardSamples, sample{at: now, bytes: n})
	return true
}
