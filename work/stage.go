// Package work implements the work-packet scheduler of spec.md §4.4: an
// ordered pipeline of buckets holding typed work packets, a pool of worker
// goroutines, and a coordinator that advances the pipeline one stage at a
// time.
//
// It is grounded on two teacher files: mgcwork.go's gcWork supplies the
// producer/consumer buffer-handoff idiom (getempty/putfull/trygetfull
// become a bucket's local cache vs. shared queue), and proc.go's
// schedule()/findrunnable()/stopTheWorld/startTheWorld supply the
// park-on-empty, wake-on-work structure, reimplemented over goroutines and
// sync.Cond instead of the M/P/G scheduler's runtime-private machinery.
package work

// Stage names the fixed, totally ordered pipeline spec.md §4.4 mandates.
// Not every Plan uses every stage; an unused Bucket simply never receives
// packets and drains immediately.
type Stage int

const (
	Unconstrained Stage = iota
	Prepare
	ClosureSetup
	Closure
	SoftRefClosure
	WeakRefClosure
	FinalRefClosure
	PhantomRefClosure
	VMRefClosure
	CalculateForwarding
	SecondRoots
	RefForwarding
	FinalizableForwarding
	Compact
	VMRefForwarding
	Release
	Final

	numStages
)

var stageNames = [numStages]string{
	Unconstrained:         "Unconstrained",
	Prepare:               "Prepare",
	ClosureSetup:          "ClosureSetup",
	Closure:               "Closure",
	SoftRefClosure:        "SoftRefClosure",
	WeakRefClosure:        "WeakRefClosure",
	FinalRefClosure:       "FinalRefClosure",
	PhantomRefClosure:     "PhantomRefClosure",
	VMRefClosure:          "VMRefClosure",
	CalculateForwarding:   "CalculateForwarding",
	SecondRoots:           "SecondRoots",
	RefForwarding:         "RefForwarding",
	FinalizableForwarding: "FinalizableForwarding",
	Compact:               "Compact",
	VMRefForwarding:       "VMRefForwarding",
	Release:               "Release",
	Final:                 "Final",
}

func (s Stage) String() string {
	if s < 0 || s >= numStages {
		return "Stage(invalid)"
	}
	return stageNames[s]
}

// NumStages is the fixed pipeline length.
const NumStages = int(numStages)

// next returns the stage after s, and ok=false if s is the last stage.
func (s Stage) next() (Stage, bool) {
	if s+1 >= numStages {
		return 0, false
	}
	return s + 1, true
}
