package bridge

import "sync"

// pairBuffer holds the latest value of two paired axes (x/y or
// hue/saturation) and releases a combined value only when a local change is
// pending and both axes are known.
type pairBuffer[A, B comparable] struct {
	mu sync.Mutex

	first  A
	second B

	haveFirst, haveSecond       bool
	pendingFirst, pendingSecond bool
}

// observeFirst records a value without marking it as a local change.
func (p *pairBuffer[A, B]) observeFirst(v A) {
	p.updateFirst(v, false)
}

// observeSecond records a value without marking it as a local change.
func (p *pairBuffer[A, B]) observeSecond(v B) {
	p.updateSecond(v, false)
}

func (p *pairBuffer[A, B]) updateFirst(v A, local bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.first = v
	p.haveFirst = true
	if local {
		p.pendingFirst = true
	}
}

func (p *pairBuffer[A, B]) updateSecond(v B, local bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.second = v
	p.haveSecond = true
	if local {
		p.pendingSecond = true
	}
}

// take returns the combined value and clears the pending marks, or ok=false
// if nothing is pending or an axis has never been seen.
func (p *pairBuffer[A, B]) take() (A, B, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var zeroA A
	var zeroB B
	if !p.pendingFirst && !p.pendingSecond {
		return zeroA, zeroB, false
	}
	if !p.haveFirst || !p.haveSecond {
		return zeroA, zeroB, false
	}
	p.pendingFirst, p.pendingSecond = false, false
	return p.first, p.second, true
}
