package chem

// BondOrder is the multiplicity of a bond.
type BondOrder int

const (
	BondSingle BondOrder = iota + 1
	BondDouble
	BondTriple
	BondQuadruple
	BondAromatic
)

// valence contribution used when counting implicit hydrogens; aromatic
// bonds count as one and the atom gets one extra unit (see implicitHs).
func (o BondOrder) valence() int {
	switch o {
	case BondDouble:
		return 2
	case BondTriple:
		return 3
	case BondQuadruple:
		return 4
	default:
		return 1
	}
}

func (o BondOrder) String() string {
	switch o {
	case BondSingle:
		return "single"
	case BondDouble:
		return "double"
	case BondTriple:
		return "triple"
	case BondQuadruple:
		return "quadruple"
	case BondAromatic:
		return "aromatic"
	}
	return "unknown"
}

// Atom is a heavy atom of the molecular graph.
type Atom struct {
	Symbol   string
	Number   int
	Aromatic bool
	Charge   int
	Isotope  int
	// Bracket reports whether the atom was written in [] form; such atoms
	// carry an explicit hydrogen count.
	Bracket bool
	// ExplicitHs is the H count written inside brackets or folded in from
	// explicit [H] neighbours.
	ExplicitHs int
	ImplicitHs int
	InRing     bool
}

// TotalHs is the number of hydrogens attached to the atom.
func (a Atom) TotalHs() int {
	return a.ExplicitHs + a.ImplicitHs
}

// Bond connects two atoms by index.
type Bond struct {
	Begin, End int
	Order      BondOrder
	InRing     bool
	// explicit records that the order was written with a bond symbol.
	explicit bool
}

// Other returns the atom on the opposite side of the bond from i.
func (b Bond) Other(i int) int {
	if b.Begin == i {
		return b.End
	}
	return b.Begin
}

// Molecule is a parsed molecular graph. It is never mutated after Parse
// returns and may be shared between goroutines.
type Molecule struct {
	Atoms []Atom
	Bonds []Bond
	// adjacency holds bond indices per atom
	adjacency [][]int
	rings     int
}

// NumAtoms returns the number of heavy atoms.
func (m *Molecule) NumAtoms() int { return len(m.Atoms) }

// NumBonds returns the number of bonds between heavy atoms.
func (m *Molecule) NumBonds() int { return len(m.Bonds) }

// Degree is the number of explicit neighbours of atom i.
func (m *Molecule) Degree(i int) int { return len(m.adjacency[i]) }

// Neighbors returns the indices of the atoms bonded to atom i.
func (m *Molecule) Neighbors(i int) []int {
	out := make([]int, 0, len(m.adjacency[i]))
	for _, bi := range m.adjacency[i] {
		out = append(out, m.Bonds[bi].Other(i))
	}
	return out
}

// BondBetween returns the bond joining atoms a and b.
func (m *Molecule) BondBetween(a, b int) (Bond, bool) {
	for _, bi := range m.adjacency[a] {
		if m.Bonds[bi].Other(a) == b {
			return m.Bonds[bi], true
		}
	}
	return Bond{}, false
}

// RingCount returns the size of the smallest set of smallest rings, which
// for a simple graph equals bonds - atoms + connected components.
func (m *Molecule) RingCount() int { return m.rings }

// MolWt returns the average molecular weight including hydrogens. Atoms
// with an isotope label are weighed at that isotope's mass.
func (m *Molecule) MolWt() float64 {
	var w float64
	for _, a := range m.Atoms {
		w += atomMass(a)
		w += float64(a.TotalHs()) * hydrogenWeight
	}
	return w
}

// CountBonds returns how many bonds have the given order.
func (m *Molecule) CountBonds(order BondOrder) int {
	n := 0
	for _, b := range m.Bonds {
		if b.Order == order {
			n++
		}
	}
	return n
}

func (m *Molecule) buildAdjacency() {
	m.adjacency = make([][]int, len(m.Atoms))
	for i, b := range m.Bonds {
		m.adjacency[b.Begin] = append(m.adjacency[b.Begin], i)
		m.adjacency[b.End] = append(m.adjacency[b.End], i)
	}
}
