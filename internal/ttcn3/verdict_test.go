package ttcn3

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerdictStringNames(t *testing.T) {
	assert.Equal(t, "none", VerdictNone.String())
	assert.Equal(t, "pass", VerdictPass.String())
	assert.Equal(t, "inconc", VerdictInconc.String())
	assert.Equal(t, "fail", VerdictFail.String())
	assert.Equal(t, "error", VerdictError.String())
}

func TestVerdictMergeIsMonotoneSupremum(t *testing.T) {
	assert.Equal(t, VerdictPass, VerdictNone.Merge(VerdictPass))
	assert.Equal(t, VerdictFail, VerdictPass.Merge(VerdictFail))
	assert.Equal(t, VerdictFail, VerdictFail.Merge(VerdictPass), "merge never downgrades")
	assert.Equal(t, VerdictError, VerdictFail.Merge(VerdictError))
}

func TestVerdictMergeChain(t *testing.T) {
	v := VerdictNone
	for _, next := range []Verdict{VerdictPass, VerdictInconc, VerdictPass, VerdictFail, VerdictPass} {
		v = v.Merge(next)
	}
	assert.Equal(t, VerdictFail, v)
}
