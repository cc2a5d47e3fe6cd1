package features

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockMetricsTracker is a mock implementation of MetricsTracker for testing.
type MockMetricsTracker struct {
	mu               sync.Mutex
	errors           int
	calcDurations    int
	lastCalcDuration time.Duration
}

func (m *MockMetricsTracker) FeatureErrorsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

func (m *MockMetricsTracker) FeatureCalcDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calcDurations++
	m.lastCalcDuration = d
}

func TestExtract_Ethanol(t *testing.T) {
	v, err := Extract("CCO")
	require.NoError(t, err)

	want := Vector{
		SMILESLength:    3,
		CarbonCount:     2,
		OxygenCount:     1,
		BackboneCarbons: 2,
		HBondDonors:     1,
		HBondAcceptors:  1,
		SingleBonds:     2,
		HeteroatomCount: 1,
		MWEstimate:      46.069,
	}
	if diff := cmp.Diff(want, v, cmpopts.EquateApprox(0, 1e-3)); diff != "" {
		t.Errorf("Extract(CCO) mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_RawTextCounts(t *testing.T) {
	tests := []struct {
		smiles string
		check  func(t *testing.T, v Vector)
	}{
		{
			smiles: "ClCCl",
			check: func(t *testing.T, v Vector) {
				// "Cl" is counted as a carbon in the text half
				assert.Equal(t, 3.0, v.CarbonCount)
				assert.Equal(t, 2.0, v.HalogenCount)
			},
		},
		{
			smiles: "c1ccccc1",
			check: func(t *testing.T, v Vector) {
				assert.Equal(t, 0.0, v.CarbonCount)
				assert.Equal(t, 2.0, v.RingCount)
				assert.Equal(t, 6.0, v.AromaticCount)
				assert.Equal(t, 1.0, v.NumRings)
				assert.Equal(t, 0.0, v.SingleBonds)
				assert.Equal(t, 0.0, v.BackboneCarbons)
			},
		},
		{
			smiles: "C1CC2CCC1CC2",
			check: func(t *testing.T, v Vector) {
				assert.Equal(t, 4.0, v.RingCount)
				assert.Equal(t, 2.0, v.NumRings)
			},
		},
		{
			smiles: "CC(=O)OC#N",
			check: func(t *testing.T, v Vector) {
				assert.Equal(t, 1.0, v.DoubleBondCount)
				assert.Equal(t, 1.0, v.TripleBondCount)
				assert.Equal(t, 1.0, v.BranchCount)
				assert.Equal(t, 1.0, v.NitrogenCount)
				assert.Equal(t, 2.0, v.OxygenCount)
			},
		},
		{
			smiles: "FC(F)(F)C(F)(F)S",
			check: func(t *testing.T, v Vector) {
				assert.Equal(t, 5.0, v.FluorineCount)
				assert.Equal(t, 1.0, v.SulfurCount)
				assert.Equal(t, 5.0, v.HalogenCount)
				assert.Equal(t, 1.0, v.HeteroatomCount)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.smiles, func(t *testing.T) {
			v, err := Extract(tt.smiles)
			require.NoError(t, err)
			tt.check(t, v)
		})
	}
}

func TestExtract_EquivalentSMILESMayDiffer(t *testing.T) {
	a, err := Extract("CCO")
	require.NoError(t, err)
	b, err := Extract("OCC")
	require.NoError(t, err)
	if diff := cmp.Diff(a, b, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("CCO and OCC differ (-CCO +OCC):\n%s", diff)
	}

	// same graph, different text: the text half changes
	c, err := Extract("C(C)O")
	require.NoError(t, err)
	assert.NotEqual(t, a.BranchCount, c.BranchCount)
	assert.InDelta(t, a.MWEstimate, c.MWEstimate, 1e-9)
}

func TestExtract_Deterministic(t *testing.T) {
	first, err := Extract("*CC(*)c1ccc(O)cc1")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Extract("*CC(*)c1ccc(O)cc1")
		require.NoError(t, err)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("extraction not deterministic (-first +again):\n%s", diff)
		}
	}
}

func TestExtract_Invalid(t *testing.T) {
	for _, s := range []string{"", "XYZ123", "INVALID", "C1CC"} {
		t.Run(s, func(t *testing.T) {
			v, err := Extract(s)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidMolecule))
			assert.False(t, errors.Is(err, ErrFeatureComputation))
			assert.Equal(t, Vector{}, v)
		})
	}
}

func TestBranchingRatio(t *testing.T) {
	tests := []struct {
		name       string
		sideChains int
		backbone   int
		want       float64
	}{
		{"normal", 1, 4, 0.25},
		{"zero backbone", 3, 0, 3},
		{"negative backbone", 2, -1, 2},
		{"no side chains", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BranchingRatio(tt.sideChains, tt.backbone))
		})
	}
}

func TestExtract_BranchingGuard(t *testing.T) {
	// one carbon with degree 4: backbone = 1 - 1 = 0
	v, err := Extract("FC(F)(F)F")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.NumSideChains)
	assert.Equal(t, 0.0, v.BackboneCarbons)
	assert.Equal(t, 1.0, v.BranchingRatio)

	v, err = Extract("CC(C)(C)C")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.NumSideChains)
	assert.Equal(t, 4.0, v.BackboneCarbons)
	assert.Equal(t, 0.25, v.BranchingRatio)
}

func TestVector_ValuesOrderMatchesNames(t *testing.T) {
	v, err := Extract("CC(=O)Oc1ccccc1C(=O)O")
	require.NoError(t, err)

	vals := v.Values()
	require.Len(t, vals, Size)
	m := v.Map()
	for i, name := range Names {
		assert.Equal(t, vals[i], m[name], name)
	}
	assert.Equal(t, "smiles_length", Names[0])
	assert.Equal(t, "mw_estimate", Names[Size-1])

	back, err := FromValues(vals)
	require.NoError(t, err)
	assert.Equal(t, v, back)

	_, err = FromValues(vals[:20])
	assert.Error(t, err)
}

func TestExtractor_Metrics(t *testing.T) {
	m := &MockMetricsTracker{}
	e := NewExtractor(m)

	_, err := e.Extract("CCO")
	require.NoError(t, err)
	_, err = e.Extract("XYZ123")
	require.Error(t, err)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 2, m.calcDurations)
	assert.Equal(t, 1, m.errors)
}

func TestExtract_KekuleAndAromaticGraphHalfAgree(t *testing.T) {
	pairs := [][2]string{
		{"C1=CC=CC=C1", "c1ccccc1"},
		{"C1=CC=CN=C1", "c1ccncc1"},
		{"*CC(*)C1=CC=CC=C1", "*CC(*)c1ccccc1"},
	}

	for _, p := range pairs {
		t.Run(p[0], func(t *testing.T) {
			k, err := Extract(p[0])
			require.NoError(t, err)
			a, err := Extract(p[1])
			require.NoError(t, err)

			// only the graph descriptors are compared; text counts differ
			graph := cmpopts.IgnoreFields(Vector{},
				"SMILESLength", "CarbonCount", "NitrogenCount", "OxygenCount",
				"SulfurCount", "FluorineCount", "RingCount", "DoubleBondCount",
				"TripleBondCount", "BranchCount")
			if diff := cmp.Diff(a, k, graph, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("graph descriptors differ (-aromatic +kekule):\n%s", diff)
			}
			assert.Greater(t, k.AromaticCount, 0.0)
		})
	}
}

func TestExtract_UnkekulizableRingIsInvalid(t *testing.T) {
	_, err := Extract("c1cccc1")
	assert.ErrorIs(t, err, ErrInvalidMolecule)
}

func TestExtractMolecule(t *testing.T) {
	e := NewExtractor(nil)

	v, mol, err := e.ExtractMolecule("OCC")
	require.NoError(t, err)
	require.NotNil(t, mol)
	assert.Equal(t, 3, mol.NumAtoms())
	want, err := e.Extract("OCC")
	require.NoError(t, err)
	assert.Equal(t, want, v)

	_, mol, err = e.ExtractMolecule("C1CC")
	assert.ErrorIs(t, err, ErrInvalidMolecule)
	assert.Nil(t, mol)
}
