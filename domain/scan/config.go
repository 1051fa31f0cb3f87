package scan

import (
	"fmt"
)

// Parameters represents user-configurable scan behavior and preferences.
// This is a domain value object that encapsulates business rules for scan
// execution.
type Parameters struct {
	// Scope and behavior
	IncludeSubsites     bool     `yaml:"include_subsites"`      // walk the full subsite subtree for site inputs
	ScanIndividualItems bool     `yaml:"scan_individual_items"` // deep-scan documents/folders inside lists
	SkipHidden          bool     `yaml:"skip_hidden"`           // skip hidden lists
	SubsiteExcludeList  []string `yaml:"subsite_exclude_list"`  // known many-subsite roots treated as leaves

	// Group resolution
	MaxNestingLevel  int      `yaml:"max_nesting_level"` // depth cap for nested group expansion
	ExcludedGroups   []string `yaml:"excluded_groups"`   // do-not-resolve groups, emitted as placeholders
	ExcludedAccounts []string `yaml:"excluded_accounts"` // system/service identities skipped outright

	// Permission filtering
	IgnoredPermissionLevels []string `yaml:"ignored_permission_levels"` // non-substantive levels dropped before resolution

	// List selection
	AllowedBaseTemplates []int    `yaml:"allowed_base_templates"` // semantic list kinds in scope
	ListAllowNames       []string `yaml:"list_allow_names"`       // system lists allow-listed by title

	// Performance parameters
	BatchSize              int `yaml:"batch_size"`               // page size for item enumeration
	FlushBatchSize         int `yaml:"flush_batch_size"`         // sink rows buffered before a flush
	ItemCheckpointInterval int `yaml:"item_checkpoint_interval"` // items between intra-list checkpoints
	MaxRetries             int `yaml:"max_retries"`              // retry attempts for failed remote calls
	RetryDelay             int `yaml:"retry_delay"`              // initial backoff delay in milliseconds
	CallTimeout            int `yaml:"call_timeout"`             // per-call timeout in seconds
}

// DefaultParameters returns sensible default scan parameters.
func DefaultParameters() *Parameters {
	return &Parameters{
		IncludeSubsites:         true,
		ScanIndividualItems:     true,
		SkipHidden:              true,
		MaxNestingLevel:         3,
		ExcludedAccounts:        []string{"SHAREPOINT\\system", "NT AUTHORITY\\authenticated users"},
		IgnoredPermissionLevels: []string{"Limited Access", "Web-Only Limited Access"},
		AllowedBaseTemplates:    []int{100, 101, 109, 115, 119},
		ListAllowNames:          nil,
		BatchSize:               100,
		FlushBatchSize:          200,
		ItemCheckpointInterval:  500,
		MaxRetries:              4,
		RetryDelay:              500,
		CallTimeout:             60,
	}
}

// ApiConstraints defines the technical limits imposed by the remote APIs.
// These are infrastructure concerns, not user preferences.
type ApiConstraints struct {
	MinBatchSize    int // minimum valid batch size
	MaxBatchSize    int // SharePoint REST API page limit
	MaxNestingLevel int // deepest group nesting worth traversing
	MaxRetries      int // maximum retry attempts
	MaxRetryDelay   int // maximum backoff delay (ms)
	MinCallTimeout  int // minimum per-call timeout (s)
	MaxCallTimeout  int // maximum per-call timeout (s)
}

// DefaultApiConstraints returns the remote API technical limits.
func DefaultApiConstraints() *ApiConstraints {
	return &ApiConstraints{
		MinBatchSize:    1,
		MaxBatchSize:    5000, // SharePoint REST API limit
		MaxNestingLevel: 10,
		MaxRetries:      10,
		MaxRetryDelay:   60000,
		MinCallTimeout:  5,
		MaxCallTimeout:  600,
	}
}

// Validate checks the scan parameters against API constraints.
func (p *Parameters) Validate(constraints *ApiConstraints) error {
	if p == nil {
		return fmt.Errorf("scan parameters cannot be nil")
	}
	if constraints == nil {
		constraints = DefaultApiConstraints()
	}

	if p.BatchSize < constraints.MinBatchSize {
		return fmt.Errorf("batch_size must be at least %d, got: %d", constraints.MinBatchSize, p.BatchSize)
	}
	if p.BatchSize > constraints.MaxBatchSize {
		return fmt.Errorf("batch_size cannot exceed %d (SharePoint API limit), got: %d", constraints.MaxBatchSize, p.BatchSize)
	}

	if p.MaxNestingLevel < 0 {
		return fmt.Errorf("max_nesting_level cannot be negative, got: %d", p.MaxNestingLevel)
	}
	if p.MaxNestingLevel > constraints.MaxNestingLevel {
		return fmt.Errorf("max_nesting_level cannot exceed %d, got: %d", constraints.MaxNestingLevel, p.MaxNestingLevel)
	}

	if p.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got: %d", p.MaxRetries)
	}
	if p.MaxRetries > constraints.MaxRetries {
		return fmt.Errorf("max_retries cannot exceed %d, got: %d", constraints.MaxRetries, p.MaxRetries)
	}

	if p.RetryDelay < 0 {
		return fmt.Errorf("retry_delay cannot be negative, got: %d ms", p.RetryDelay)
	}
	if p.RetryDelay > constraints.MaxRetryDelay {
		return fmt.Errorf("retry_delay cannot exceed %d ms, got: %d ms", constraints.MaxRetryDelay, p.RetryDelay)
	}

	if p.CallTimeout < constraints.MinCallTimeout {
		return fmt.Errorf("call_timeout must be at least %d seconds, got: %d", constraints.MinCallTimeout, p.CallTimeout)
	}
	if p.CallTimeout > constraints.MaxCallTimeout {
		return fmt.Errorf("call_timeout cannot exceed %d seconds, got: %d", constraints.MaxCallTimeout, p.CallTimeout)
	}

	if p.FlushBatchSize <= 0 {
		return fmt.Errorf("flush_batch_size must be positive, got: %d", p.FlushBatchSize)
	}
	if p.ItemCheckpointInterval <= 0 {
		return fmt.Errorf("item_checkpoint_interval must be positive, got: %d", p.ItemCheckpointInterval)
	}

	return nil
}

// ValidateAndSetDefaults fills zero values with defaults, then validates
// against constraints.
func (p *Parameters) ValidateAndSetDefaults(constraints *ApiConstraints) error {
	if p == nil {
		return fmt.Errorf("scan parameters cannot be nil")
	}
	if constraints == nil {
		constraints = DefaultApiConstraints()
	}

	defaults := DefaultParameters()
	if p.BatchSize == 0 {
		p.BatchSize = defaults.BatchSize
	}
	if p.FlushBatchSize == 0 {
		p.FlushBatchSize = defaults.FlushBatchSize
	}
	if p.ItemCheckpointInterval == 0 {
		p.ItemCheckpointInterval = defaults.ItemCheckpointInterval
	}
	if p.MaxNestingLevel == 0 {
		p.MaxNestingLevel = defaults.MaxNestingLevel
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = defaults.MaxRetries
	}
	if p.RetryDelay == 0 {
		p.RetryDelay = defaults.RetryDelay
	}
	if p.CallTimeout == 0 {
		p.CallTimeout = defaults.CallTimeout
	}
	if p.AllowedBaseTemplates == nil {
		p.AllowedBaseTemplates = defaults.AllowedBaseTemplates
	}
	if p.IgnoredPermissionLevels == nil {
		p.IgnoredPermissionLevels = defaults.IgnoredPermissionLevels
	}
	if p.ExcludedAccounts == nil {
		p.ExcludedAccounts = defaults.ExcludedAccounts
	}

	return p.Validate(constraints)
}

// AllowsBaseTemplate reports whether a list base template is in scope.
func (p *Parameters) AllowsBaseTemplate(template int) bool {
	for _, t := range p.AllowedBaseTemplates {
		if t == template {
			return true
		}
	}
	return false
}

// GetEffectiveBatchSize returns the batch size to use, with fallback to
// default if not set.
func (p *Parameters) GetEffectiveBatchSize() int {
	if p.BatchSize <= 0 {
		return DefaultParameters().BatchSize
	}
	return p.BatchSize
}
