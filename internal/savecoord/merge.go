package savecoord

import (
	"fmt"
	"time"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// CheckDataConsistency compares an incoming write with the stored data and
// returns warnings for writes that look destructive. It never rejects.
func CheckDataConsistency(existing, incoming *types.ConfigData, source string, strategy MergeStrategy) []string {
	if existing == nil || incoming == nil {
		return nil
	}
	var warnings []string
	owner := ownerOf(source)
	merged := mergeFields(existing, incoming, strategy, source)

	if existing.ThemeSettings != nil && merged.ThemeSettings == nil && owner != domainTheme {
		warnings = append(warnings, fmt.Sprintf("%s would drop theme settings it does not own", source))
	}
	if len(existing.Categories) > 0 && len(merged.Categories) == 0 && owner != domainBoard {
		warnings = append(warnings, fmt.Sprintf("%s would drop %d categories it does not own", source, len(existing.Categories)))
	}
	if in, cur := incoming.LastModified(), existing.LastModified(); !in.IsZero() && !cur.IsZero() && in.Before(cur) {
		warnings = append(warnings, fmt.Sprintf("%s is writing data older than the stored copy (%s < %s)",
			source, in.Format(time.RFC3339), cur.Format(time.RFC3339)))
	}
	return warnings
}

// MergeData combines incoming with existing per strategy and stamps the
// metadata. Neither input is modified.
func MergeData(existing, incoming *types.ConfigData, strategy MergeStrategy, source string, now time.Time) *types.ConfigData {
	out := mergeFields(existing, incoming, strategy, source)
	if out == nil {
		out = &types.ConfigData{}
	}
	if out.Metadata == nil {
		out.Metadata = &types.Metadata{}
	}
	out.Metadata.Cache = nil
	out.Metadata.LastModified = now.UTC()
	out.Metadata.Source = source
	out.Metadata.MergedBy = string(strategy)
	return out
}

func mergeFields(existing, incoming *types.ConfigData, strategy MergeStrategy, source string) *types.ConfigData {
	switch {
	case incoming == nil:
		return existing.Clone()
	case existing == nil || strategy == StrategyOverwrite:
		return incoming.Clone()
	case strategy == StrategyMerge:
		return shallowMerge(existing, incoming)
	default:
		return smartMerge(existing, incoming, source)
	}
}

func shallowMerge(existing, incoming *types.ConfigData) *types.ConfigData {
	out := existing.Clone()
	in := incoming.Clone()
	if in.Categories != nil {
		out.Categories = in.Categories
	}
	if in.Settings != nil {
		out.Settings = in.Settings
	}
	if in.ThemeSettings != nil {
		out.ThemeSettings = in.ThemeSettings
	}
	return out
}

func smartMerge(existing, incoming *types.ConfigData, source string) *types.ConfigData {
	out := existing.Clone()
	in := incoming.Clone()
	switch ownerOf(source) {
	case domainBoard:
		if in.Categories != nil {
			out.Categories = in.Categories
		}
		if in.Settings != nil {
			out.Settings = in.Settings
		}
	case domainTheme:
		if in.ThemeSettings != nil {
			out.ThemeSettings = in.ThemeSettings
		}
	default:
		return shallowMerge(existing, incoming)
	}
	return out
}
