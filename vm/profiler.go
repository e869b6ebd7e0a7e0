package vm

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Port is a point in a predicate's execution that profilers and tracers
// observe.
type Port uint8

const (
	PortCall Port = iota
	PortExit
	PortFail
	PortRedo
	PortException
	PortCut
	numPorts
)

var portNames = [...]string{"call", "exit", "fail", "redo", "exception", "cut"}

func (p Port) String() string { return portNames[p] }

// PredicateProfile holds the port counters of one predicate.
type PredicateProfile struct {
	Indicator string
	ports     [numPorts]uint64
}

// Count returns how often port was passed.
func (pp *PredicateProfile) Count(port Port) uint64 {
	return atomic.LoadUint64(&pp.ports[port])
}

// Profiler counts port passes per predicate. One Profiler may be shared
// by several machines.
type Profiler struct {
	preds sync.Map // *Predicate -> *PredicateProfile

	// OnHot is called once when a predicate's call count reaches
	// HotThreshold.
	HotThreshold uint64
	OnHot        func(p *Predicate, profile *PredicateProfile)

	total uint64
}

// NewProfiler creates an empty profiler.
func NewProfiler() *Profiler {
	return &Profiler{}
}

// Record counts one pass through port for p.
func (pr *Profiler) Record(reg *Registry, p *Predicate, port Port) {
	if p == nil {
		return
	}
	val, ok := pr.preds.Load(p)
	if !ok {
		val, _ = pr.preds.LoadOrStore(p, &PredicateProfile{Indicator: reg.Indicator(p)})
	}
	profile := val.(*PredicateProfile)
	n := atomic.AddUint64(&profile.ports[port], 1)
	atomic.AddUint64(&pr.total, 1)
	if port == PortCall && pr.OnHot != nil && pr.HotThreshold > 0 && n == pr.HotThreshold {
		pr.OnHot(p, profile)
	}
}

// Profile returns the counters for p, or nil if p never ran.
func (pr *Profiler) Profile(p *Predicate) *PredicateProfile {
	if val, ok := pr.preds.Load(p); ok {
		return val.(*PredicateProfile)
	}
	return nil
}

// Total returns the number of recorded port passes.
func (pr *Profiler) Total() uint64 { return atomic.LoadUint64(&pr.total) }

// Top returns the n profiles with the most calls, ties broken by
// indicator.
func (pr *Profiler) Top(n int) []*PredicateProfile {
	var all []*PredicateProfile
	pr.preds.Range(func(_, value any) bool {
		all = append(all, value.(*PredicateProfile))
		return true
	})
	sort.Slice(all, func(i, j int) bool {
		ci, cj := all[i].Count(PortCall), all[j].Count(PortCall)
		if ci != cj {
			return ci > cj
		}
		return all[i].Indicator < all[j].Indicator
	})
	if n < len(all) {
		all = all[:n]
	}
	return all
}

// Reset clears all counters.
func (pr *Profiler) Reset() {
	pr.preds.Range(func(key, _ any) bool {
		pr.preds.Delete(key)
		return true
	})
	atomic.StoreUint64(&pr.total, 0)
}

func (m *Machine) profile(p *Predicate, port Port) {
	if m.Profiler != nil {
		m.Profiler.Record(m.reg, p, port)
	}
}
