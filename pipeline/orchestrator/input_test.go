package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) string { return "" }

func TestResolveInputPrefersFlagOverEnvOverStdin(t *testing.T) {
	raw, source, err := ResolveInput(`{"id":"a"}`, "", func(string) string { return `{"id":"env"}` }, strings.NewReader(`{"id":"stdin"}`))
	require.NoError(t, err)
	assert.Equal(t, SourceFlag, source)
	assert.JSONEq(t, `{"id":"a"}`, string(raw))
}

func TestResolveInputFallsBackToEnv(t *testing.T) {
	raw, source, err := ResolveInput("", "", func(key string) string {
		if key == EnvInput {
			return `{"id":"env"}`
		}
		return ""
	}, strings.NewReader(`{"id":"stdin"}`))
	require.NoError(t, err)
	assert.Equal(t, SourceEnv, source)
	assert.JSONEq(t, `{"id":"env"}`, string(raw))
}

func TestResolveInputFallsBackToStdin(t *testing.T) {
	raw, source, err := ResolveInput("", "", noEnv, strings.NewReader(`{"id":"stdin"}`))
	require.NoError(t, err)
	assert.Equal(t, SourceStdin, source)
	assert.JSONEq(t, `{"id":"stdin"}`, string(raw))
}

func TestResolveInputErrorsWhenNothingProvided(t *testing.T) {
	_, _, err := ResolveInput("", "", noEnv, strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestClassifyDocument(t *testing.T) {
	kind, err := ClassifyDocument([]byte(`{"id":"a"}`))
	require.NoError(t, err)
	assert.Equal(t, KindUnary, kind)

	kind, err = ClassifyDocument([]byte(`[{"id":"a"}]`))
	require.NoError(t, err)
	assert.Equal(t, KindStream, kind)

	_, err = ClassifyDocument([]byte(`not-json`))
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestSplitItems(t *testing.T) {
	items, err := SplitItems([]byte(`{"id":"a"}`))
	require.NoError(t, err)
	require.Len(t, items, 1)

	items, err = SplitItems([]byte(`[{"id":"a"},{"id":"b"}]`))
	require.NoError(t, err)
	require.Len(t, items, 2)

	_, err = SplitItems([]byte(`"not-json"`))
	assert.ErrorIs(t, err, ErrMalformedInput)
}
