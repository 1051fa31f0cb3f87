package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_DefaultsAreValid(t *testing.T) {
	params := DefaultParameters()

	err := params.Validate(DefaultApiConstraints())

	assert.NoError(t, err)
}

func TestValidate_RejectsOutOfRangeValues(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Parameters)
		errorMsg string
	}{
		{
			"batch size below minimum",
			func(p *Parameters) { p.BatchSize = 0 },
			"batch_size must be at least",
		},
		{
			"batch size above api limit",
			func(p *Parameters) { p.BatchSize = 5001 },
			"batch_size cannot exceed",
		},
		{
			"negative nesting level",
			func(p *Parameters) { p.MaxNestingLevel = -1 },
			"max_nesting_level cannot be negative",
		},
		{
			"nesting level above cap",
			func(p *Parameters) { p.MaxNestingLevel = 11 },
			"max_nesting_level cannot exceed",
		},
		{
			"negative retries",
			func(p *Parameters) { p.MaxRetries = -1 },
			"max_retries cannot be negative",
		},
		{
			"retry delay above cap",
			func(p *Parameters) { p.RetryDelay = 60001 },
			"retry_delay cannot exceed",
		},
		{
			"call timeout below minimum",
			func(p *Parameters) { p.CallTimeout = 1 },
			"call_timeout must be at least",
		},
		{
			"zero flush batch size",
			func(p *Parameters) { p.FlushBatchSize = 0 },
			"flush_batch_size must be positive",
		},
		{
			"zero checkpoint interval",
			func(p *Parameters) { p.ItemCheckpointInterval = 0 },
			"item_checkpoint_interval must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := DefaultParameters()
			tt.mutate(params)

			err := params.Validate(DefaultApiConstraints())

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestValidate_NilParameters(t *testing.T) {
	var params *Parameters

	err := params.Validate(nil)

	assert.Error(t, err)
}

func TestValidateAndSetDefaults_FillsZeroValues(t *testing.T) {
	// Arrange - a partial config as it would come out of a sparse YAML file.
	params := &Parameters{IncludeSubsites: true}

	// Act
	err := params.ValidateAndSetDefaults(nil)

	// Assert
	require.NoError(t, err)
	defaults := DefaultParameters()
	assert.Equal(t, defaults.BatchSize, params.BatchSize)
	assert.Equal(t, defaults.FlushBatchSize, params.FlushBatchSize)
	assert.Equal(t, defaults.ItemCheckpointInterval, params.ItemCheckpointInterval)
	assert.Equal(t, defaults.MaxNestingLevel, params.MaxNestingLevel)
	assert.Equal(t, defaults.AllowedBaseTemplates, params.AllowedBaseTemplates)
	assert.Equal(t, defaults.IgnoredPermissionLevels, params.IgnoredPermissionLevels)
	assert.Equal(t, defaults.ExcludedAccounts, params.ExcludedAccounts)
}

func TestValidateAndSetDefaults_KeepsExplicitValues(t *testing.T) {
	params := &Parameters{
		BatchSize:        250,
		MaxNestingLevel:  5,
		ExcludedAccounts: []string{},
	}

	err := params.ValidateAndSetDefaults(nil)

	require.NoError(t, err)
	assert.Equal(t, 250, params.BatchSize)
	assert.Equal(t, 5, params.MaxNestingLevel)
	// An explicit empty exclusion list is not overwritten with defaults.
	assert.Empty(t, params.ExcludedAccounts)
}

func TestAllowsBaseTemplate(t *testing.T) {
	params := DefaultParameters()

	assert.True(t, params.AllowsBaseTemplate(101))  // document library
	assert.True(t, params.AllowsBaseTemplate(100))  // generic list
	assert.False(t, params.AllowsBaseTemplate(544)) // MicroFeed and friends
}

func TestGetEffectiveBatchSize_FallsBackForUnsetValue(t *testing.T) {
	params := &Parameters{}

	assert.Equal(t, DefaultParameters().BatchSize, params.GetEffectiveBatchSize())

	params.BatchSize = 42
	assert.Equal(t, 42, params.GetEffectiveBatchSize())
}
