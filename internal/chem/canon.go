package chem

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// CanonicalSMILES writes the molecule in a canonical form: atoms are
// ranked by iteratively refined graph invariants, ties are broken one
// class at a time, and the graph is written depth first in rank order.
// Stereo information is not represented in Molecule and is not written.
func (m *Molecule) CanonicalSMILES() string {
	if len(m.Atoms) == 0 {
		return ""
	}
	ranks := m.canonicalRanks()
	w := &writer{
		m:          m,
		ranks:      ranks,
		visited:    make([]bool, len(m.Atoms)),
		bondUsed:   make([]bool, len(m.Bonds)),
		children:   make([][]int, len(m.Atoms)),
		closures:   make([][]closure, len(m.Atoms)),
		ringDigits: make(map[int]int),
	}
	return w.write()
}

func (m *Molecule) invariant(i int) []int {
	a := m.Atoms[i]
	aromatic, ring := 0, 0
	if a.Aromatic {
		aromatic = 1
	}
	if a.InRing {
		ring = 1
	}
	return []int{m.Degree(i), a.Number, aromatic, a.TotalHs(), a.Charge, a.Isotope, ring}
}

func (m *Molecule) canonicalRanks() []int {
	n := len(m.Atoms)
	keys := make([][]int, n)
	for i := range keys {
		keys[i] = m.invariant(i)
	}
	ranks := denseRanks(keys)
	ranks = m.refine(ranks)

	for classCount(ranks) < n {
		tied := lowestTiedRank(ranks)
		pick := slices.Index(ranks, tied)
		for i := range ranks {
			ranks[i] *= 2
		}
		ranks[pick]--
		ranks = m.refine(ranks)
	}
	return ranks
}

// refine splits rank classes by the sorted ranks and bond orders of each
// atom's neighbours until the partition stops changing.
func (m *Molecule) refine(ranks []int) []int {
	keys := make([][]int, len(ranks))
	for i := range ranks {
		keys[i] = []int{ranks[i]}
	}
	ranks = denseRanks(keys)

	for {
		before := classCount(ranks)
		for i := range ranks {
			nbrs := make([]int, 0, 2*m.Degree(i))
			for _, bi := range m.adjacency[i] {
				b := m.Bonds[bi]
				nbrs = append(nbrs, ranks[b.Other(i)]*8+int(b.Order))
			}
			slices.Sort(nbrs)
			keys[i] = append([]int{ranks[i]}, nbrs...)
		}
		ranks = denseRanks(keys)
		if classCount(ranks) == before {
			return ranks
		}
	}
}

func denseRanks(keys [][]int) []int {
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return slices.Compare(keys[a], keys[b])
	})

	ranks := make([]int, len(keys))
	rank := 0
	for i, idx := range order {
		if i > 0 && slices.Compare(keys[order[i-1]], keys[idx]) != 0 {
			rank++
		}
		ranks[idx] = rank
	}
	return ranks
}

func classCount(ranks []int) int {
	seen := make(map[int]struct{}, len(ranks))
	for _, r := range ranks {
		seen[r] = struct{}{}
	}
	return len(seen)
}

func lowestTiedRank(ranks []int) int {
	counts := make(map[int]int, len(ranks))
	for _, r := range ranks {
		counts[r]++
	}
	best := -1
	for r, c := range counts {
		if c > 1 && (best < 0 || r < best) {
			best = r
		}
	}
	return best
}

type closure struct {
	bond    int
	opening bool
}

type writer struct {
	m          *Molecule
	ranks      []int
	visited    []bool
	bondUsed   []bool
	children   [][]int
	closures   [][]closure
	ringDigits map[int]int
	freeDigits []int
	nextDigit  int
	sb         strings.Builder
}

func (w *writer) write() string {
	n := len(w.m.Atoms)
	first := true
	for {
		start := -1
		for i := 0; i < n; i++ {
			if !w.visited[i] && (start < 0 || w.ranks[i] < w.ranks[start]) {
				start = i
			}
		}
		if start < 0 {
			break
		}
		w.plan(start, -1)
		if !first {
			w.sb.WriteByte('.')
		}
		first = false
		w.emit(start, -1)
	}
	return w.sb.String()
}

// plan walks the component once to fix the spanning tree and ring
// closure bonds before anything is written.
func (w *writer) plan(u, parentBond int) {
	w.visited[u] = true
	for _, bi := range w.sortedBonds(u) {
		if bi == parentBond || w.bondUsed[bi] {
			continue
		}
		w.bondUsed[bi] = true
		v := w.m.Bonds[bi].Other(u)
		if w.visited[v] {
			w.closures[v] = append(w.closures[v], closure{bond: bi, opening: true})
			w.closures[u] = append(w.closures[u], closure{bond: bi})
			continue
		}
		w.children[u] = append(w.children[u], bi)
		w.plan(v, bi)
	}
}

func (w *writer) sortedBonds(u int) []int {
	bonds := slices.Clone(w.m.adjacency[u])
	slices.SortFunc(bonds, func(a, b int) int {
		return w.ranks[w.m.Bonds[a].Other(u)] - w.ranks[w.m.Bonds[b].Other(u)]
	})
	return bonds
}

func (w *writer) emit(u, parentBond int) {
	if parentBond >= 0 {
		w.sb.WriteString(w.bondText(parentBond))
	}
	w.sb.WriteString(w.atomText(u))

	var released []int
	for _, c := range w.closures[u] {
		if c.opening {
			d := w.allocDigit()
			w.ringDigits[c.bond] = d
			w.sb.WriteString(w.bondText(c.bond))
			w.sb.WriteString(digitText(d))
		} else {
			d := w.ringDigits[c.bond]
			w.sb.WriteString(digitText(d))
			released = append(released, d)
		}
	}
	w.freeDigits = append(w.freeDigits, released...)
	slices.Sort(w.freeDigits)

	kids := w.children[u]
	for i, bi := range kids {
		v := w.m.Bonds[bi].Other(u)
		if i < len(kids)-1 {
			w.sb.WriteByte('(')
			w.emit(v, bi)
			w.sb.WriteByte(')')
		} else {
			w.emit(v, bi)
		}
	}
}

func (w *writer) allocDigit() int {
	if len(w.freeDigits) > 0 {
		d := w.freeDigits[0]
		w.freeDigits = w.freeDigits[1:]
		return d
	}
	w.nextDigit++
	return w.nextDigit
}

func digitText(d int) string {
	if d < 10 {
		return strconv.Itoa(d)
	}
	return fmt.Sprintf("%%%02d", d)
}

func (w *writer) bondText(bi int) string {
	b := w.m.Bonds[bi]
	switch b.Order {
	case BondDouble:
		return "="
	case BondTriple:
		return "#"
	case BondQuadruple:
		return "$"
	case BondSingle:
		if w.m.Atoms[b.Begin].Aromatic && w.m.Atoms[b.End].Aromatic {
			return "-"
		}
	}
	return ""
}

func (w *writer) atomText(i int) string {
	a := w.m.Atoms[i]
	symbol := a.Symbol
	if a.Aromatic {
		symbol = strings.ToLower(symbol)
	}

	if a.Charge == 0 && a.Isotope == 0 && isOrganic(a.Symbol) && (!a.Aromatic || len(symbol) == 1) {
		if hs, ok := implicitHs(a.Symbol, a.Aromatic, w.m.bondValence(i)); ok && hs == a.TotalHs() {
			return symbol
		}
	}

	var sb strings.Builder
	sb.WriteByte('[')
	if a.Isotope > 0 {
		sb.WriteString(strconv.Itoa(a.Isotope))
	}
	sb.WriteString(symbol)
	if h := a.TotalHs(); h > 0 {
		sb.WriteByte('H')
		if h > 1 {
			sb.WriteString(strconv.Itoa(h))
		}
	}
	switch {
	case a.Charge == 1:
		sb.WriteByte('+')
	case a.Charge == -1:
		sb.WriteByte('-')
	case a.Charge > 1:
		sb.WriteString("+" + strconv.Itoa(a.Charge))
	case a.Charge < -1:
		sb.WriteString(strconv.Itoa(a.Charge))
	}
	sb.WriteByte(']')
	return sb.String()
}

func (m *Molecule) bondValence(i int) int {
	v := 0
	for _, bi := range m.adjacency[i] {
		v += m.Bonds[bi].Order.valence()
	}
	return v
}
