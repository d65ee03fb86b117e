package engine

// activePath tracks the records on the current cascade path.
//
// A cascade is a depth-first walk of successors. A record that is reached
// again while it is still on the path means the derivation graph has a cycle
// through it. Reaching a record again after its branch has finished is a
// diamond, which is not a cycle; the engine handles that case by skipping
// records that are already invalid.
//
// Example cycle:
//
//	A -> B -> C -> A   (A is still on the path when C's successors are read)
//
// Example diamond:
//
//	A -> B -> D
//	A -> C -> D        (D left the path when B's branch finished)
//
// activePath is owned by one Invalidate call and is not safe for concurrent use.
type activePath struct {
	onPath map[int64]bool
	order  []int64
}

func newActivePath() *activePath {
	return &activePath{onPath: make(map[int64]bool)}
}

// Contains reports whether id is on the current path.
func (p *activePath) Contains(id int64) bool {
	return p.onPath[id]
}

// Enter pushes id onto the path.
func (p *activePath) Enter(id int64) {
	p.onPath[id] = true
	p.order = append(p.order, id)
}

// Leave pops id from the path. Leaving must mirror Enter (last in, first out).
func (p *activePath) Leave(id int64) {
	delete(p.onPath, id)
	if n := len(p.order); n > 0 && p.order[n-1] == id {
		p.order = p.order[:n-1]
	}
}

// Depth returns the number of records on the path.
func (p *activePath) Depth() int {
	return len(p.order)
}

// Path returns a copy of the path from the originating record, optionally
// closed with the re-entered id.
func (p *activePath) Path(reentered ...int64) []int64 {
	out := make([]int64, 0, len(p.order)+len(reentered))
	out = append(out, p.order...)
	return append(out, reentered...)
}
