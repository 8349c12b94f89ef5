package savecoord

import "fmt"

// Priority orders queued requests. High bypasses the queue.
type Priority string

// Priorities, most urgent first.
const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// ParsePriority accepts the three priority names.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return p, nil
	case "":
		return PriorityNormal, nil
	default:
		return "", fmt.Errorf("unknown priority %q", s)
	}
}

// MergeStrategy selects how a write is combined with the stored data.
type MergeStrategy string

// Merge strategies.
const (
	// StrategySmart updates only the fields the source owns.
	StrategySmart MergeStrategy = "smart"
	// StrategyOverwrite replaces the stored data wholesale.
	StrategyOverwrite MergeStrategy = "overwrite"
	// StrategyMerge is a shallow union where present incoming fields win.
	StrategyMerge MergeStrategy = "merge"
)

// ParseMergeStrategy accepts the three strategy names.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch m := MergeStrategy(s); m {
	case StrategySmart, StrategyOverwrite, StrategyMerge:
		return m, nil
	case "":
		return StrategySmart, nil
	default:
		return "", fmt.Errorf("unknown merge strategy %q", s)
	}
}

// Well-known write sources. Ownership of fields follows the source.
const (
	SourceCategoryManager = "category-manager"
	SourceShortcutManager = "shortcut-manager"
	SourceSettingsManager = "settings-manager"
	SourceThemeManager    = "theme-manager"
	SourceUnknown         = "unknown"
)

// domain is the set of fields a source owns.
type domain int

const (
	domainNone domain = iota
	domainBoard
	domainTheme
)

func ownerOf(source string) domain {
	switch source {
	case SourceCategoryManager, SourceShortcutManager, SourceSettingsManager:
		return domainBoard
	case SourceThemeManager:
		return domainTheme
	default:
		return domainNone
	}
}

// SaveOptions controls one save request.
type SaveOptions struct {
	Source   string
	Priority Priority
	// ValidateBefore defaults to true when nil.
	ValidateBefore *bool
	MergeStrategy  MergeStrategy
}

func (o SaveOptions) withDefaults() SaveOptions {
	if o.Source == "" {
		o.Source = SourceUnknown
	}
	if o.Priority == "" {
		o.Priority = PriorityNormal
	}
	if o.MergeStrategy == "" {
		o.MergeStrategy = StrategySmart
	}
	if o.ValidateBefore == nil {
		v := true
		o.ValidateBefore = &v
	}
	return o
}

// Bool returns a pointer to b, for SaveOptions.ValidateBefore.
func Bool(b bool) *bool { return &b }
