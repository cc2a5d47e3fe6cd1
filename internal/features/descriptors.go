package features

import (
	"errors"
	"math"
	"strings"
	"unicode/utf8"

	"polymer-predictor/internal/chem"
)

// structuralCounts fills the text derived half of v. Counting is done on the
// raw string, so "Cl" adds to the carbon count and lowercase aromatic atoms
// do not.
func structuralCounts(smiles string, v *Vector) {
	v.SMILESLength = float64(utf8.RuneCountInString(smiles))
	v.CarbonCount = count(smiles, "C")
	v.NitrogenCount = count(smiles, "N")
	v.OxygenCount = count(smiles, "O")
	v.SulfurCount = count(smiles, "S")
	v.FluorineCount = count(smiles, "F")
	v.RingCount = count(smiles, "1") + count(smiles, "2")
	v.DoubleBondCount = count(smiles, "=")
	v.TripleBondCount = count(smiles, "#")
	v.BranchCount = count(smiles, "(")
}

func count(s, sub string) float64 {
	return float64(strings.Count(s, sub))
}

func graphDescriptors(mol *chem.Molecule, v *Vector) error {
	if mol == nil || mol.NumAtoms() == 0 {
		return errors.New("empty molecular graph")
	}
	d := chem.Describe(mol)

	sideChains := d.HighDegreeAtoms
	backbone := d.Carbons - sideChains

	v.NumSideChains = float64(sideChains)
	v.BackboneCarbons = float64(backbone)
	v.BranchingRatio = BranchingRatio(sideChains, backbone)
	v.AromaticCount = float64(d.AromaticAtoms)
	v.HBondDonors = float64(d.HDonors)
	v.HBondAcceptors = float64(d.HAcceptors)
	v.NumRings = float64(d.RingCount)
	v.SingleBonds = float64(d.SingleBonds)
	v.HalogenCount = float64(d.Halogens)
	v.HeteroatomCount = float64(d.Heteroatoms)
	v.MWEstimate = d.MolWt

	if math.IsNaN(v.MWEstimate) || math.IsInf(v.MWEstimate, 0) {
		return errors.New("molecular weight is not finite")
	}
	return nil
}

// BranchingRatio divides side chains by backbone carbons, treating a
// backbone below one as one.
func BranchingRatio(sideChains, backboneCarbons int) float64 {
	return float64(sideChains) / float64(max(backboneCarbons, 1))
}
