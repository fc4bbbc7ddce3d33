package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureFlags_DefaultsOff(t *testing.T) {
	unsetenv(t, "FEATURE_ALLOCATION_SINGLE_ACTIVE_INTERNSHIP", "FEATURE_ALLOCATION_REQUIRE_APPROVED_DOCUMENTS", "FEATURE_LIFECYCLE_AUTO_ADVANCE")

	ff := LoadFeatureFlags()

	all := ff.GetAllFeatures()
	require.Len(t, all, 3)
	assert.Equal(t, FeatureRequireApprovedDocuments, all[0].Name)
	assert.Equal(t, FeatureSingleActiveInternship, all[1].Name)
	assert.Equal(t, FeatureAutoAdvance, all[2].Name)
	for _, f := range all {
		assert.False(t, f.Enabled, f.Name)
		assert.NotEmpty(t, f.Description)
	}
	assert.False(t, ff.IsEnabled("no.such.flag"))
}

func TestFeatureFlags_Environment(t *testing.T) {
	t.Setenv("FEATURE_LIFECYCLE_AUTO_ADVANCE", "true")
	t.Setenv("FEATURE_ALLOCATION_SINGLE_ACTIVE_INTERNSHIP", "maybe")

	ff := LoadFeatureFlags()

	assert.True(t, ff.IsEnabled(FeatureAutoAdvance))
	assert.False(t, ff.IsEnabled(FeatureSingleActiveInternship), "unparsable values are ignored")
}

func TestFeatureFlags_RuntimeToggle(t *testing.T) {
	unsetenv(t, "FEATURE_LIFECYCLE_AUTO_ADVANCE")
	ff := LoadFeatureFlags()
	enabled := ff.Enabled(FeatureAutoAdvance)

	assert.False(t, enabled())
	require.NoError(t, ff.EnableFeature(FeatureAutoAdvance))
	assert.True(t, enabled(), "bound func sees the new value")
	require.NoError(t, ff.DisableFeature(FeatureAutoAdvance))
	assert.False(t, enabled())

	assert.ErrorIs(t, ff.SetEnabled("no.such.flag", true), ErrFeatureNotFound)
}

func TestFeatureNameToEnvKey(t *testing.T) {
	assert.Equal(t, "FEATURE_ALLOCATION_REQUIRE_APPROVED_DOCUMENTS", featureNameToEnvKey(FeatureRequireApprovedDocuments))
}
