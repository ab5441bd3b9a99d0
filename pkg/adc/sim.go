package adc

import (
	"fmt"
	"math/rand"
	"sync"
)

// Sim is a simulated ADC unit. Scripted channels replay their sequence in
// a loop; other configured channels return noise around mid-scale.
type Sim struct {
	mu       sync.Mutex
	scripts  map[Channel][]int
	pos      map[Channel]int
	failures map[Channel]map[int]error
	reads    map[Channel]int
	maxCodes map[Channel]int
	noise    int
	rnd      *rand.Rand
}

func NewSim(seed int64, noise int) *Sim {
	return &Sim{
		scripts:  map[Channel][]int{},
		pos:      map[Channel]int{},
		failures: map[Channel]map[int]error{},
		reads:    map[Channel]int{},
		maxCodes: map[Channel]int{},
		noise:    noise,
		rnd:      rand.New(rand.NewSource(seed)),
	}
}

// Script sets the raw sequence returned by ch.
func (f *Sim) Script(ch Channel, codes ...int) *Sim {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[ch] = append([]int(nil), codes...)
	f.pos[ch] = 0
	return f
}

// FailAt makes the n-th conversion (zero based) on ch return err.
func (f *Sim) FailAt(ch Channel, n int, err error) *Sim {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[ch] == nil {
		f.failures[ch] = map[int]error{}
	}
	f.failures[ch][n] = err
	return f
}

// Reads returns the number of conversions issued on ch.
func (f *Sim) Reads(ch Channel) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[ch]
}

func (f *Sim) ConfigureChannel(ch Channel, width BitWidth, atten Attenuation) error {
	if _, err := atten.FullScale(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maxCodes[ch] = width.MaxCode()
	return nil
}

func (f *Sim) ReadRaw(ch Channel) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	maxCode, ok := f.maxCodes[ch]
	if !ok {
		return 0, fmt.Errorf("sim: channel %d not configured", ch)
	}
	n := f.reads[ch]
	f.reads[ch] = n + 1
	if err, ok := f.failures[ch][n]; ok {
		return 0, err
	}
	if seq := f.scripts[ch]; len(seq) > 0 {
		v := seq[f.pos[ch]%len(seq)]
		f.pos[ch]++
		return v, nil
	}
	v := maxCode / 2
	if f.noise > 0 {
		v += f.rnd.Intn(2*f.noise+1) - f.noise
	}
	if v < 0 {
		v = 0
	}
	if v > maxCode {
		v = maxCode
	}
	return v, nil
}

func (f *Sim) Close() error { return nil }
