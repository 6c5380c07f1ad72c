package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamforge/pipelinecore/pipeline/stage"
)

func TestParseDocumentAcceptsSupportedSchemaVersion(t *testing.T) {
	doc, err := ParseDocument([]byte(`
schemaVersion: "1.2.0"
appName: demo
basePackage: demo
steps:
  - name: step-one
    cardinality: ONE_TO_ONE
    inputTypeName: Item
    outputTypeName: Item
`))
	require.NoError(t, err)
	assert.Equal(t, "demo", doc.AppName)
	require.Len(t, doc.Steps, 1)
	assert.Equal(t, CardinalityOneToOne, doc.Steps[0].Cardinality)
}

func TestParseDocumentRejectsUnsupportedSchemaVersion(t *testing.T) {
	_, err := ParseDocument([]byte(`schemaVersion: "2.0.0"`))
	require.Error(t, err)
	var cfgErr *stage.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestParseDocumentRejectsMissingSchemaVersion(t *testing.T) {
	_, err := ParseDocument([]byte(`appName: demo`))
	require.Error(t, err)
	var cfgErr *stage.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestResolvePipelineConfigParsesQuantities(t *testing.T) {
	cfg, err := ResolvePipelineConfig(DefaultsDocument{
		RetryLimit:     5,
		RetryWait:      "750",
		MaxBackoff:     "45000",
		BufferCapacity: "1Ki",
		Parallelism:    "PARALLEL",
	})
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Defaults.RetryLimit)
	assert.Equal(t, 750*time.Millisecond, cfg.Defaults.RetryWait)
	assert.Equal(t, 45*time.Second, cfg.Defaults.MaxBackoff)
	assert.Equal(t, 1024, cfg.BufferCapacity)
	assert.Equal(t, stage.ParallelismParallel, cfg.Parallelism)
}

func TestResolvePipelineConfigRejectsUnknownParallelism(t *testing.T) {
	_, err := ResolvePipelineConfig(DefaultsDocument{Parallelism: "WRONG"})
	require.Error(t, err)
}
