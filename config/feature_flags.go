package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages optional allocation and lifecycle behaviour.
// Flags can be flipped at runtime; readers see the new value on their next
// check.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool
}

// Predefined feature flag names.
const (
	// === Allocation policies ===
	FeatureSingleActiveInternship   = "allocation.single_active_internship"   // One non-terminal internship per student
	FeatureRequireApprovedDocuments = "allocation.require_approved_documents" // Assign only students with approved documents

	// === Lifecycle ===
	FeatureAutoAdvance = "lifecycle.auto_advance" // Start and finish internships by date
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}
	ff.initializeDefaults()
	ff.loadFromEnvironment()
	return ff
}

// initializeDefaults registers every flag. All are off until enabled.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureSingleActiveInternship] = &Feature{
		Name:        FeatureSingleActiveInternship,
		Description: "Reject students that already hold a pending or in-progress internship",
	}

	ff.features[FeatureRequireApprovedDocuments] = &Feature{
		Name:        FeatureRequireApprovedDocuments,
		Description: "Reject students whose document bundle is not approved",
	}

	ff.features[FeatureAutoAdvance] = &Feature{
		Name:        FeatureAutoAdvance,
		Description: "Move internships to in_progress on start date and to finished after end date",
	}
}

// loadFromEnvironment applies FEATURE_<NAME>=true|false overrides.
// Example: FEATURE_LIFECYCLE_AUTO_ADVANCE=true
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "lifecycle.auto_advance" -> "FEATURE_LIFECYCLE_AUTO_ADVANCE"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled reports whether a feature is on. Unknown features are off.
func (ff *FeatureFlags) IsEnabled(featureName string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	return ok && feature.Enabled
}

// Enabled returns a func bound to one feature, for components that check
// a flag on every run.
func (ff *FeatureFlags) Enabled(featureName string) func() bool {
	return func() bool { return ff.IsEnabled(featureName) }
}

// SetEnabled switches a feature on or off.
func (ff *FeatureFlags) SetEnabled(featureName string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	feature.Enabled = enabled
	return nil
}

// EnableFeature enables a feature.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetEnabled(featureName, true)
}

// DisableFeature disables a feature.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetEnabled(featureName, false)
}

// GetAllFeatures returns copies of all features sorted by name.
func (ff *FeatureFlags) GetAllFeatures() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		result = append(result, *f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// --- Errors ---

var ErrFeatureNotFound = &FeatureFlagError{Message: "feature not found"}

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
