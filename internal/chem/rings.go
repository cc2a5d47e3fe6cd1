package chem

import (
	"fmt"
	"math/bits"
	"slices"
)

// perceiveRings marks ring atoms and bonds and returns the SSSR size.
// A bond is a ring bond exactly when it is not a bridge of the graph.
func perceiveRings(m *Molecule) int {
	n := len(m.Atoms)
	disc := make([]int, n)
	low := make([]int, n)
	for i := range disc {
		disc[i] = -1
	}
	bridge := make([]bool, len(m.Bonds))
	timer := 0
	components := 0

	var visit func(u, parentBond int)
	visit = func(u, parentBond int) {
		disc[u] = timer
		low[u] = timer
		timer++
		for _, bi := range m.adjacency[u] {
			if bi == parentBond {
				continue
			}
			v := m.Bonds[bi].Other(u)
			if disc[v] < 0 {
				visit(v, bi)
				low[u] = min(low[u], low[v])
				if low[v] > disc[u] {
					bridge[bi] = true
				}
			} else {
				low[u] = min(low[u], disc[v])
			}
		}
	}

	for i := 0; i < n; i++ {
		if disc[i] < 0 {
			components++
			visit(i, -1)
		}
	}

	for i := range m.Bonds {
		if bridge[i] {
			continue
		}
		m.Bonds[i].InRing = true
		m.Atoms[m.Bonds[i].Begin].InRing = true
		m.Atoms[m.Bonds[i].End].InRing = true
	}

	return len(m.Bonds) - n + components
}

// smallestRings returns a smallest set of smallest rings, each as a list
// of bond indices. Candidates are Horton cycles (two shortest paths from
// a root plus one closing bond), kept in size order while they are
// linearly independent over GF(2).
func (m *Molecule) smallestRings() [][]int {
	if m.rings == 0 {
		return nil
	}
	n := len(m.Atoms)
	words := (len(m.Bonds) + 63) / 64

	type cycle struct {
		bonds []int
		bits  []uint64
	}
	seen := make(map[string]bool)
	var candidates []cycle

	parent := make([]int, n)
	mark := make([]int, n)
	for root := 0; root < n; root++ {
		if !m.Atoms[root].InRing {
			continue
		}
		for i := range parent {
			parent[i] = -2
		}
		parent[root] = -1
		queue := []int{root}
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			for _, bi := range m.adjacency[u] {
				if !m.Bonds[bi].InRing {
					continue
				}
				v := m.Bonds[bi].Other(u)
				if parent[v] == -2 {
					parent[v] = bi
					queue = append(queue, v)
				}
			}
		}

		for bi, b := range m.Bonds {
			if !b.InRing || parent[b.Begin] == -2 || parent[b.End] == -2 {
				continue
			}
			if parent[b.Begin] == bi || parent[b.End] == bi {
				continue
			}
			for i := range mark {
				mark[i] = 0
			}
			left := m.treePath(parent, b.Begin, mark, 1)
			right := m.treePath(parent, b.End, mark, 2)
			if right == nil && b.End != root {
				continue
			}
			if left == nil && b.Begin != root {
				continue
			}

			bonds := append(append(append([]int{}, left...), right...), bi)
			slices.Sort(bonds)
			key := fmt.Sprint(bonds)
			if seen[key] {
				continue
			}
			seen[key] = true
			vec := make([]uint64, words)
			for _, x := range bonds {
				vec[x/64] |= 1 << (x % 64)
			}
			candidates = append(candidates, cycle{bonds: bonds, bits: vec})
		}
	}

	slices.SortStableFunc(candidates, func(a, b cycle) int {
		if len(a.bonds) != len(b.bonds) {
			return len(a.bonds) - len(b.bonds)
		}
		return slices.Compare(a.bonds, b.bonds)
	})

	var basis [][]uint64
	var pivots []int
	var out [][]int
	for _, c := range candidates {
		v := slices.Clone(c.bits)
		for k, b := range basis {
			if v[pivots[k]/64]&(1<<(pivots[k]%64)) != 0 {
				for w := range v {
					v[w] ^= b[w]
				}
			}
		}
		p := lowestBit(v)
		if p < 0 {
			continue
		}
		basis = append(basis, v)
		pivots = append(pivots, p)
		out = append(out, c.bonds)
		if len(out) == m.rings {
			break
		}
	}
	return out
}

// treePath walks parent bonds from v to the BFS root, marking atoms with
// tag. It returns nil when the walk meets an atom carrying another tag
// other than at the root, which means the two paths are not disjoint.
func (m *Molecule) treePath(parent []int, v int, mark []int, tag int) []int {
	var bonds []int
	for parent[v] >= 0 {
		if mark[v] != 0 && mark[v] != tag {
			return nil
		}
		mark[v] = tag
		bi := parent[v]
		bonds = append(bonds, bi)
		v = m.Bonds[bi].Other(v)
	}
	return bonds
}

func lowestBit(v []uint64) int {
	for w, x := range v {
		if x != 0 {
			return w*64 + bits.TrailingZeros64(x)
		}
	}
	return -1
}

// ringAtoms returns the atoms touched by a ring given as bond indices.
func (m *Molecule) ringAtoms(ring []int) []int {
	var atoms []int
	for _, bi := range ring {
		b := m.Bonds[bi]
		for _, a := range []int{b.Begin, b.End} {
			if !slices.Contains(atoms, a) {
				atoms = append(atoms, a)
			}
		}
	}
	return atoms
}
