// Package chem parses SMILES strings into molecular graphs and computes
// the graph level descriptors the feature extractor needs.
//
// The parser covers the OpenSMILES grammar used for polymer repeat units:
// organic subset and bracket atoms, branches, ring closures up to %99,
// aromatic lowercase atoms, charges, isotopes and '*' attachment points.
// Stereo marks are accepted and discarded.
//
// Aromaticity is perceived from the graph rather than taken from the
// input: lowercase rings are first given a Kekule structure (rejected when
// none exists), then rings and fused ring pairs with 4n+2 pi electrons are
// marked aromatic. Kekule and aromatic spellings of a molecule therefore
// parse to the same graph.
package chem

import (
	"errors"
)

// ErrEmptySMILES is returned for blank input.
var ErrEmptySMILES = errors.New("empty SMILES")

// Parser turns SMILES text into a Molecule.
type Parser interface {
	Parse(smiles string) (*Molecule, error)
}

// DefaultParser is the in-process SMILES parser.
type DefaultParser struct{}

// Parse implements Parser.
func (DefaultParser) Parse(smiles string) (*Molecule, error) {
	return parseSMILES(smiles)
}

// Parse parses a SMILES string with the default parser.
func Parse(smiles string) (*Molecule, error) {
	return parseSMILES(smiles)
}

// IsValid reports whether smiles parses into a molecule.
func IsValid(smiles string) bool {
	_, err := parseSMILES(smiles)
	return err == nil
}

// Canonicalize returns the canonical SMILES of the input. Two inputs that
// describe the same graph yield the same string.
func Canonicalize(smiles string) (string, error) {
	m, err := parseSMILES(smiles)
	if err != nil {
		return "", err
	}
	return m.CanonicalSMILES(), nil
}

// Descriptors are the graph level counts used by feature extraction.
type Descriptors struct {
	NumAtoms        int
	NumBonds        int
	MolWt           float64
	HDonors         int
	HAcceptors      int
	RingCount       int
	AromaticAtoms   int
	SingleBonds     int
	DoubleBonds     int
	TripleBonds     int
	Halogens        int
	Heteroatoms     int
	Carbons         int
	HighDegreeAtoms int
}

// Describe computes the descriptor counts for m.
func Describe(m *Molecule) Descriptors {
	d := Descriptors{
		NumAtoms:    m.NumAtoms(),
		NumBonds:    m.NumBonds(),
		MolWt:       m.MolWt(),
		RingCount:   m.RingCount(),
		SingleBonds: m.CountBonds(BondSingle),
		DoubleBonds: m.CountBonds(BondDouble),
		TripleBonds: m.CountBonds(BondTriple),
	}
	for i, a := range m.Atoms {
		if a.Aromatic {
			d.AromaticAtoms++
		}
		switch a.Symbol {
		case "F", "Cl", "Br", "I":
			d.Halogens++
		case "N", "O":
			d.Heteroatoms++
			d.HAcceptors++
			if a.TotalHs() > 0 {
				d.HDonors++
			}
		case "S":
			d.Heteroatoms++
		case "C":
			d.Carbons++
		}
		if m.Degree(i) > 2 {
			d.HighDegreeAtoms++
		}
	}
	return d
}
