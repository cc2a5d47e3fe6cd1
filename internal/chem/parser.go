package chem

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError describes why a SMILES string was rejected. Pos is the byte
// offset of the offending character, or -1 for graph level problems such
// as valence violations.
type ParseError struct {
	SMILES string
	Pos    int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Pos < 0 {
		return fmt.Sprintf("invalid SMILES %q: %s", e.SMILES, e.Reason)
	}
	return fmt.Sprintf("invalid SMILES %q at %d: %s", e.SMILES, e.Pos, e.Reason)
}

type ringOpen struct {
	atom     int
	order    BondOrder
	explicit bool
	pos      int
}

type parser struct {
	s        string
	pos      int
	atoms    []Atom
	bonds    []Bond
	seen     map[[2]int]bool
	prev     int
	branches []int
	rings    map[int]ringOpen

	pending         BondOrder
	pendingExplicit bool
}

func parseSMILES(s string) (*Molecule, error) {
	if strings.TrimSpace(s) == "" {
		return nil, ErrEmptySMILES
	}

	p := &parser{
		s:     s,
		prev:  -1,
		seen:  make(map[[2]int]bool),
		rings: make(map[int]ringOpen),
	}
	if err := p.run(); err != nil {
		return nil, err
	}

	m := &Molecule{Atoms: p.atoms, Bonds: p.bonds}
	m = foldExplicitHydrogens(m)
	m.buildAdjacency()
	m.rings = perceiveRings(m)

	if err := p.finishAromaticity(m); err != nil {
		return nil, err
	}
	if err := p.kekulize(m); err != nil {
		return nil, err
	}
	if err := p.assignHydrogens(m); err != nil {
		return nil, err
	}
	perceiveAromaticity(m)
	return m, nil
}

func (p *parser) fail(reason string, args ...any) error {
	return &ParseError{SMILES: p.s, Pos: p.pos, Reason: fmt.Sprintf(reason, args...)}
}

func (p *parser) run() error {
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		switch {
		case c == '(':
			if p.prev < 0 {
				return p.fail("branch opened before any atom")
			}
			if p.pending != 0 {
				return p.fail("bond symbol before branch")
			}
			p.branches = append(p.branches, p.prev)
			p.pos++
		case c == ')':
			if len(p.branches) == 0 {
				return p.fail("unbalanced ')'")
			}
			if p.pending != 0 {
				return p.fail("dangling bond at end of branch")
			}
			p.prev = p.branches[len(p.branches)-1]
			p.branches = p.branches[:len(p.branches)-1]
			p.pos++
		case strings.IndexByte(`-=#$:/\`, c) >= 0:
			if p.prev < 0 {
				return p.fail("bond without a preceding atom")
			}
			if p.pending != 0 {
				return p.fail("consecutive bond symbols")
			}
			p.pending = bondSymbol(c)
			p.pendingExplicit = true
			p.pos++
		case c == '.':
			if p.prev < 0 || p.pending != 0 {
				return p.fail("misplaced '.'")
			}
			p.prev = -1
			p.pos++
		case c == '%' || (c >= '0' && c <= '9'):
			if err := p.ringClosure(); err != nil {
				return err
			}
		case c == '[':
			a, err := p.bracketAtom()
			if err != nil {
				return err
			}
			if err := p.addAtom(a); err != nil {
				return err
			}
		default:
			a, err := p.organicAtom()
			if err != nil {
				return err
			}
			if err := p.addAtom(a); err != nil {
				return err
			}
		}
	}

	if len(p.branches) > 0 {
		return p.fail("unclosed branch")
	}
	if p.pending != 0 {
		return p.fail("dangling bond at end of input")
	}
	for n, r := range p.rings {
		return &ParseError{SMILES: p.s, Pos: r.pos, Reason: fmt.Sprintf("unclosed ring %d", n)}
	}
	if len(p.atoms) == 0 {
		return p.fail("no atoms")
	}
	return nil
}

func bondSymbol(c byte) BondOrder {
	switch c {
	case '=':
		return BondDouble
	case '#':
		return BondTriple
	case '$':
		return BondQuadruple
	case ':':
		return BondAromatic
	}
	// '-', '/' and '\' are all single bonds once stereo is dropped
	return BondSingle
}

func (p *parser) addAtom(a Atom) error {
	idx := len(p.atoms)
	p.atoms = append(p.atoms, a)
	if p.prev >= 0 {
		if err := p.addBond(p.prev, idx, p.pending, p.pendingExplicit); err != nil {
			return err
		}
	}
	p.prev = idx
	p.pending = 0
	p.pendingExplicit = false
	return nil
}

func (p *parser) addBond(a, b int, order BondOrder, explicit bool) error {
	if a == b {
		return p.fail("atom bonded to itself")
	}
	key := [2]int{min(a, b), max(a, b)}
	if p.seen[key] {
		return p.fail("duplicate bond between atoms %d and %d", a, b)
	}
	p.seen[key] = true
	if order == 0 {
		order = BondSingle
		if p.atoms[a].Aromatic && p.atoms[b].Aromatic {
			order = BondAromatic
		}
	}
	p.bonds = append(p.bonds, Bond{Begin: a, End: b, Order: order, explicit: explicit})
	return nil
}

func (p *parser) ringClosure() error {
	if p.prev < 0 {
		return p.fail("ring closure without a preceding atom")
	}
	start := p.pos
	var n int
	if p.s[p.pos] == '%' {
		if p.pos+2 >= len(p.s) || !isDigit(p.s[p.pos+1]) || !isDigit(p.s[p.pos+2]) {
			return p.fail("'%%' must be followed by two digits")
		}
		n, _ = strconv.Atoi(p.s[p.pos+1 : p.pos+3])
		p.pos += 3
	} else {
		n = int(p.s[p.pos] - '0')
		p.pos++
	}

	open, ok := p.rings[n]
	if !ok {
		p.rings[n] = ringOpen{atom: p.prev, order: p.pending, explicit: p.pendingExplicit, pos: start}
		p.pending = 0
		p.pendingExplicit = false
		return nil
	}
	delete(p.rings, n)

	order, explicit := p.pending, p.pendingExplicit
	if open.order != 0 {
		if order != 0 && order != open.order {
			p.pos = start
			return p.fail("conflicting bond orders for ring %d", n)
		}
		order, explicit = open.order, open.explicit
	}
	if open.atom == p.prev {
		p.pos = start
		return p.fail("ring %d closes on the atom that opened it", n)
	}
	if err := p.addBond(open.atom, p.prev, order, explicit); err != nil {
		return err
	}
	p.pending = 0
	p.pendingExplicit = false
	return nil
}

func (p *parser) organicAtom() (Atom, error) {
	rest := p.s[p.pos:]
	if strings.HasPrefix(rest, "Cl") || strings.HasPrefix(rest, "Br") {
		sym := rest[:2]
		p.pos += 2
		return Atom{Symbol: sym, Number: elements[sym].Number}, nil
	}

	c := rest[:1]
	switch c {
	case "B", "C", "N", "O", "P", "S", "F", "I", "*":
		p.pos++
		return Atom{Symbol: c, Number: elements[c].Number}, nil
	case "b", "c", "n", "o", "p", "s":
		p.pos++
		sym := aromaticSymbols[c]
		return Atom{Symbol: sym, Number: elements[sym].Number, Aromatic: true}, nil
	}
	return Atom{}, p.fail("unexpected character %q", rest[0])
}

func (p *parser) bracketAtom() (Atom, error) {
	p.pos++ // '['
	var a Atom
	a.Bracket = true

	start := p.pos
	for p.pos < len(p.s) && isDigit(p.s[p.pos]) {
		p.pos++
	}
	if p.pos > start {
		a.Isotope, _ = strconv.Atoi(p.s[start:p.pos])
	}

	sym, aromatic, ok := p.bracketSymbol()
	if !ok {
		return Atom{}, p.fail("unknown element in bracket atom")
	}
	a.Symbol = sym
	a.Aromatic = aromatic
	a.Number = elements[sym].Number

	// chirality is parsed and dropped
	for p.pos < len(p.s) && p.s[p.pos] == '@' {
		p.pos++
	}
	if rest := p.s[p.pos:]; len(rest) >= 2 {
		switch rest[:2] {
		case "TH", "AL", "SP", "TB", "OH":
			if p.pos > 0 && p.s[p.pos-1] == '@' {
				p.pos += 2
				for p.pos < len(p.s) && isDigit(p.s[p.pos]) {
					p.pos++
				}
			}
		}
	}

	if p.pos < len(p.s) && p.s[p.pos] == 'H' {
		p.pos++
		a.ExplicitHs = 1
		start := p.pos
		for p.pos < len(p.s) && isDigit(p.s[p.pos]) {
			p.pos++
		}
		if p.pos > start {
			a.ExplicitHs, _ = strconv.Atoi(p.s[start:p.pos])
		}
	}

	if p.pos < len(p.s) && (p.s[p.pos] == '+' || p.s[p.pos] == '-') {
		sign := 1
		if p.s[p.pos] == '-' {
			sign = -1
		}
		c := p.s[p.pos]
		p.pos++
		magnitude := 1
		start := p.pos
		for p.pos < len(p.s) && isDigit(p.s[p.pos]) {
			p.pos++
		}
		if p.pos > start {
			magnitude, _ = strconv.Atoi(p.s[start:p.pos])
		} else {
			for p.pos < len(p.s) && p.s[p.pos] == c {
				magnitude++
				p.pos++
			}
		}
		a.Charge = sign * magnitude
	}

	if p.pos < len(p.s) && p.s[p.pos] == ':' {
		p.pos++
		start := p.pos
		for p.pos < len(p.s) && isDigit(p.s[p.pos]) {
			p.pos++
		}
		if p.pos == start {
			return Atom{}, p.fail("atom class without digits")
		}
	}

	if p.pos >= len(p.s) || p.s[p.pos] != ']' {
		return Atom{}, p.fail("unterminated bracket atom")
	}
	p.pos++
	return a, nil
}

func (p *parser) bracketSymbol() (string, bool, bool) {
	rest := p.s[p.pos:]
	if rest == "" {
		return "", false, false
	}
	if rest[0] == '*' {
		p.pos++
		return "*", false, true
	}
	if len(rest) >= 2 {
		if sym, ok := aromaticSymbols[rest[:2]]; ok {
			p.pos += 2
			return sym, true, true
		}
	}
	if sym, ok := aromaticSymbols[rest[:1]]; ok {
		p.pos++
		return sym, true, true
	}
	if rest[0] < 'A' || rest[0] > 'Z' {
		return "", false, false
	}
	if len(rest) >= 2 && rest[1] >= 'a' && rest[1] <= 'z' {
		if _, ok := elements[rest[:2]]; ok {
			p.pos += 2
			return rest[:2], false, true
		}
	}
	if _, ok := elements[rest[:1]]; ok {
		p.pos++
		return rest[:1], false, true
	}
	return "", false, false
}

// foldExplicitHydrogens removes plain [H] atoms hanging off a heavy atom
// and counts them on that atom instead.
func foldExplicitHydrogens(m *Molecule) *Molecule {
	degree := make([]int, len(m.Atoms))
	for _, b := range m.Bonds {
		degree[b.Begin]++
		degree[b.End]++
	}

	drop := make([]bool, len(m.Atoms))
	found := false
	for _, b := range m.Bonds {
		for _, pair := range [][2]int{{b.Begin, b.End}, {b.End, b.Begin}} {
			h, heavy := pair[0], pair[1]
			ha := m.Atoms[h]
			if ha.Symbol != "H" || ha.Isotope != 0 || ha.Charge != 0 || ha.ExplicitHs != 0 {
				continue
			}
			if degree[h] != 1 || m.Atoms[heavy].Symbol == "H" || b.Order != BondSingle {
				continue
			}
			drop[h] = true
			found = true
		}
	}
	if !found {
		return m
	}

	remap := make([]int, len(m.Atoms))
	out := &Molecule{}
	for i, a := range m.Atoms {
		if drop[i] {
			remap[i] = -1
			continue
		}
		remap[i] = len(out.Atoms)
		out.Atoms = append(out.Atoms, a)
	}
	for _, b := range m.Bonds {
		switch {
		case drop[b.Begin]:
			out.Atoms[remap[b.End]].ExplicitHs++
		case drop[b.End]:
			out.Atoms[remap[b.Begin]].ExplicitHs++
		default:
			b.Begin, b.End = remap[b.Begin], remap[b.End]
			out.Bonds = append(out.Bonds, b)
		}
	}
	return out
}

func (p *parser) finishAromaticity(m *Molecule) error {
	for i, a := range m.Atoms {
		if a.Aromatic && !a.InRing {
			return &ParseError{SMILES: p.s, Pos: -1, Reason: fmt.Sprintf("non-ring atom %d (%s) marked aromatic", i, a.Symbol)}
		}
	}
	for i := range m.Bonds {
		b := &m.Bonds[i]
		if b.Order != BondAromatic {
			continue
		}
		if !b.InRing || !m.Atoms[b.Begin].Aromatic || !m.Atoms[b.End].Aromatic {
			b.Order = BondSingle
		}
	}
	return nil
}

func (p *parser) assignHydrogens(m *Molecule) error {
	for i := range m.Atoms {
		a := &m.Atoms[i]
		v := m.explicitValence(i)
		valences, organic := organicValences[a.Symbol]

		if a.Bracket {
			if organic && a.Symbol != "*" && a.Charge == 0 && v > valences[len(valences)-1] {
				return &ParseError{SMILES: p.s, Pos: -1, Reason: fmt.Sprintf("explicit valence %d too high for %s", v, a.Symbol)}
			}
			continue
		}

		hs, ok := implicitHs(a.Symbol, false, v)
		if !ok {
			return &ParseError{SMILES: p.s, Pos: -1, Reason: fmt.Sprintf("explicit valence %d too high for %s", v, a.Symbol)}
		}
		a.ImplicitHs = hs
	}
	return nil
}

// explicitValence sums the bond valences of atom i and any hydrogens
// written or folded onto it.
func (m *Molecule) explicitValence(i int) int {
	v := m.Atoms[i].ExplicitHs
	for _, bi := range m.adjacency[i] {
		v += m.Bonds[bi].Order.valence()
	}
	return v
}

// implicitHs fills an unbracketed atom up to its lowest allowed valence
// at or above v. Aromatic atoms get one extra valence unit for the
// delocalised bond and never fail.
func implicitHs(symbol string, aromatic bool, v int) (int, bool) {
	valences, ok := organicValences[symbol]
	if !ok {
		return 0, false
	}
	if symbol == "*" {
		return 0, true
	}
	if aromatic {
		v++
		if v >= valences[0] {
			return 0, true
		}
		return valences[0] - v, true
	}
	for _, allowed := range valences {
		if allowed >= v {
			return allowed - v, true
		}
	}
	return 0, false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
