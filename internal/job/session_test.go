package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeSessionStrictDropsUndeclaredMappings(t *testing.T) {
	defaults := map[string]string{"host": "localhost"}
	callerInput := map[string]string{"host": "10.0.0.1"}
	mapping := map[string]string{
		"host":  "${host}",
		"extra": "not-declared",
	}

	merged, err := MergeSession(defaults, callerInput, mapping, MergeStrict)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", merged["host"])
	_, present := merged["extra"]
	assert.False(t, present)
}

func TestMergeSessionLooseKeepsMappingSuperset(t *testing.T) {
	defaults := map[string]string{"host": "localhost"}
	callerInput := map[string]string{"host": "10.0.0.1"}
	mapping := map[string]string{
		"extra": "computed-${host}",
	}

	merged, err := MergeSession(defaults, callerInput, mapping, MergeLoose)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", merged["host"])
	assert.Equal(t, "computed-10.0.0.1", merged["extra"])
}

func TestMergeSessionUnknownModeErrors(t *testing.T) {
	_, err := MergeSession(nil, nil, nil, MergeMode("bogus"))
	assert.Error(t, err)
}

func TestSubstituteLeavesUnknownIdentifiersLiteral(t *testing.T) {
	got := substitute("${known}-${unknown}", map[string]string{"known": "x"})
	assert.Equal(t, "x-${unknown}", got)
}

func TestSubstituteNoTokens(t *testing.T) {
	got := substitute("plain-string", map[string]string{"known": "x"})
	assert.Equal(t, "plain-string", got)
}
