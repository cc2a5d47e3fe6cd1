package chem

import "slices"

// maxKekuleSteps bounds the matching search on pathological inputs.
const maxKekuleSteps = 1_000_000

// group returns the main group of an element, or 0 for elements that take
// no part in aromaticity.
func group(symbol string) int {
	switch symbol {
	case "B":
		return 13
	case "C", "Si":
		return 14
	case "N", "P", "As":
		return 15
	case "O", "S", "Se", "Te":
		return 16
	}
	return 0
}

// needsDouble reports whether an atom written in aromatic form must carry
// a double bond in the Kekule structure: its valence with every aromatic
// bond taken as single falls short of the target for its charge.
func (m *Molecule) needsDouble(i int) bool {
	a := m.Atoms[i]
	s := a.ExplicitHs
	for _, bi := range m.adjacency[i] {
		s += m.Bonds[bi].Order.valence()
	}
	var target int
	switch group(a.Symbol) {
	case 14:
		target = 4 - abs(a.Charge)
	case 15:
		target = 3 + a.Charge
	case 16:
		target = 2 + a.Charge
	default:
		return false
	}
	return s < target
}

// kekulize replaces aromatic bonds with alternating single and double
// bonds. Every lowercase atom that needs a double bond must get exactly
// one; when no such assignment exists the input is rejected.
func (p *parser) kekulize(m *Molecule) error {
	need := make([]bool, len(m.Atoms))
	found := false
	for i, a := range m.Atoms {
		if a.Aromatic && m.needsDouble(i) {
			need[i] = true
			found = true
		}
	}

	if found {
		k := &kekuleSearch{m: m, need: need, matched: make([]bool, len(m.Atoms))}
		if !k.solve() {
			return &ParseError{SMILES: p.s, Pos: -1, Reason: "cannot assign a Kekule structure to the aromatic system"}
		}
		for _, bi := range k.doubles {
			m.Bonds[bi].Order = BondDouble
		}
	}

	for i := range m.Bonds {
		if m.Bonds[i].Order == BondAromatic {
			m.Bonds[i].Order = BondSingle
		}
	}
	for i := range m.Atoms {
		m.Atoms[i].Aromatic = false
	}
	return nil
}

type kekuleSearch struct {
	m       *Molecule
	need    []bool
	matched []bool
	doubles []int
	steps   int
}

// options lists the aromatic bonds from atom i to atoms that still need
// a double bond.
func (k *kekuleSearch) options(i int) []int {
	var out []int
	for _, bi := range k.m.adjacency[i] {
		b := k.m.Bonds[bi]
		if b.Order != BondAromatic {
			continue
		}
		j := b.Other(i)
		if k.need[j] && !k.matched[j] {
			out = append(out, bi)
		}
	}
	return out
}

// solve matches the most constrained open atom first and backtracks.
func (k *kekuleSearch) solve() bool {
	k.steps++
	if k.steps > maxKekuleSteps {
		return false
	}

	pick, pickOpts := -1, []int(nil)
	for i := range k.m.Atoms {
		if !k.need[i] || k.matched[i] {
			continue
		}
		opts := k.options(i)
		if len(opts) == 0 {
			return false
		}
		if pick < 0 || len(opts) < len(pickOpts) {
			pick, pickOpts = i, opts
		}
	}
	if pick < 0 {
		return true
	}

	for _, bi := range pickOpts {
		j := k.m.Bonds[bi].Other(pick)
		k.matched[pick], k.matched[j] = true, true
		k.doubles = append(k.doubles, bi)
		if k.solve() {
			return true
		}
		k.doubles = k.doubles[:len(k.doubles)-1]
		k.matched[pick], k.matched[j] = false, false
	}
	return false
}

// piElectrons is the number of electrons atom i donates to a ring, or -1
// when the atom cannot be part of an aromatic ring. Counting follows the
// usual model: one per endocyclic double bond, none for an exocyclic
// double bond to N, O or S, two for a lone pair on N, O, S or a carbanion.
func (m *Molecule) piElectrons(i int) int {
	a := m.Atoms[i]
	g := group(a.Symbol)
	if g == 0 {
		return -1
	}

	doubles, ringDouble, exoHetero := 0, false, false
	for _, bi := range m.adjacency[i] {
		b := m.Bonds[bi]
		switch b.Order {
		case BondTriple, BondQuadruple:
			return -1
		case BondDouble:
			doubles++
			if b.InRing {
				ringDouble = true
			} else if og := group(m.Atoms[b.Other(i)].Symbol); og == 15 || og == 16 {
				exoHetero = true
			}
		}
	}
	switch {
	case doubles > 1:
		return -1
	case ringDouble:
		return 1
	case doubles == 1 && exoHetero:
		return 0
	case doubles == 1:
		return -1
	}

	connections := m.Degree(i) + a.TotalHs()
	switch g {
	case 13:
		if a.Charge == 0 && connections == 3 {
			return 0
		}
	case 14:
		switch a.Charge {
		case -1:
			return 2
		case 1:
			return 0
		}
	case 15:
		if a.Charge == 0 && connections == 3 {
			return 2
		}
	case 16:
		if a.Charge == 0 && connections == 2 {
			return 2
		}
	}
	return -1
}

// perceiveAromaticity marks rings, and pairs of fused rings, whose atoms
// all take part and hold 4n+2 pi electrons. Their atoms become aromatic
// and their bonds BondAromatic.
func perceiveAromaticity(m *Molecule) {
	rings := m.smallestRings()
	if len(rings) == 0 {
		return
	}
	electrons := make([]int, len(m.Atoms))
	for i := range m.Atoms {
		if m.Atoms[i].InRing {
			electrons[i] = m.piElectrons(i)
		} else {
			electrons[i] = -1
		}
	}

	huckel := func(atoms []int) bool {
		sum := 0
		for _, a := range atoms {
			if electrons[a] < 0 {
				return false
			}
			sum += electrons[a]
		}
		return sum >= 2 && (sum-2)%4 == 0
	}

	aromatic := make([]bool, len(rings))
	atoms := make([][]int, len(rings))
	for r, ring := range rings {
		atoms[r] = m.ringAtoms(ring)
		aromatic[r] = huckel(atoms[r])
	}

	var fused [][]int
	for r := range rings {
		for q := r + 1; q < len(rings); q++ {
			if aromatic[r] && aromatic[q] {
				continue
			}
			if !sharesBond(rings[r], rings[q]) {
				continue
			}
			union := slices.Clone(atoms[r])
			for _, a := range atoms[q] {
				if !slices.Contains(union, a) {
					union = append(union, a)
				}
			}
			if huckel(union) {
				fused = append(fused, append(slices.Clone(rings[r]), rings[q]...))
			}
		}
	}

	for r, ring := range rings {
		if aromatic[r] {
			markAromatic(m, ring)
		}
	}
	for _, ring := range fused {
		markAromatic(m, ring)
	}
}

func sharesBond(a, b []int) bool {
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}

func markAromatic(m *Molecule, ring []int) {
	for _, bi := range ring {
		b := &m.Bonds[bi]
		b.Order = BondAromatic
		m.Atoms[b.Begin].Aromatic = true
		m.Atoms[b.End].Aromatic = true
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
