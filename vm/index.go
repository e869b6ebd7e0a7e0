package vm

// Indexer chooses candidate clauses for a call.
//
// SelectClause returns the first clause at or after from that may match a
// call whose first argument has the given key and that is visible in
// generation gen, plus the next such clause (nil when cl is the last
// candidate). A nil alternative lets the machine run the call without a
// choice point.
type Indexer interface {
	SelectClause(key Word, from *Clause, gen uint64) (cl, alt *Clause)
}

// FirstArgIndexer filters clauses on the principal functor of the first
// argument.
type FirstArgIndexer struct{}

// SelectClause implements Indexer.
func (FirstArgIndexer) SelectClause(key Word, from *Clause, gen uint64) (*Clause, *Clause) {
	cl := nextCandidate(key, from, gen)
	if cl == nil {
		return nil, nil
	}
	return cl, nextCandidate(key, cl.Next(), gen)
}

func nextCandidate(key Word, c *Clause, gen uint64) *Clause {
	for ; c != nil; c = c.Next() {
		if !c.Visible(gen) {
			continue
		}
		if key == 0 || c.Key == 0 || c.Key == key {
			return c
		}
	}
	return nil
}

// indexKey returns the indexing key of a call argument: the atom or small
// integer itself, or the functor header of a compound. Variables and
// indirects yield 0.
func (m *Machine) indexKey(w Word) Word {
	w = m.deref(w)
	switch w.Tag() {
	case TagAtom, TagInt:
		return w
	case TagCompound:
		return m.global[w.Index()]
	}
	return 0
}
