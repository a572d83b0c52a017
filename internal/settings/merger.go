// Package settings merges handler defaults and the per-project
// .cw-settings overrides into a canonical ProjectInfo. Defaults apply
// first, settings last, so user settings always win. A malformed
// sequence setting (any element empty after trimming) rejects the whole
// setting rather than applying a partial value.
package settings

import (
	"context"
	"strings"

	"github.com/codewatch/codewatch/internal/logging"
	"github.com/codewatch/codewatch/internal/project"
	"github.com/codewatch/codewatch/internal/types"
)

// Merge applies handler defaults and then the settings document to info.
// A nil settings document applies defaults only.
func Merge(info *types.ProjectInfo, h project.Handler, s *types.ProjectSettings, log logging.Logger) {
	ctx := context.Background()

	applyDefaults(info, h, s)

	if s == nil {
		return
	}

	if port := strings.TrimSpace(s.InternalDebugPort.String()); port != "" {
		info.DebugPort = port
	}

	if s.ContextRoot != nil {
		info.ContextRoot = NormalizePath(*s.ContextRoot)
	}
	if s.HealthCheck != nil {
		info.HealthCheck = NormalizePath(*s.HealthCheck)
	}

	if s.IgnoredPaths != nil {
		filtered := dropEmpty(s.IgnoredPaths)
		if len(filtered) > 0 {
			info.IgnoredPaths = filtered
		}
	}

	if s.MavenProfiles != nil {
		if trimmed, ok := trimAll(s.MavenProfiles); ok {
			info.MavenProfiles = trimmed
		} else {
			log.Warn(ctx, nil, "mavenProfiles setting rejected, contains empty element",
				"projectID", info.ProjectID)
		}
	}
	if s.MavenProperties != nil {
		if trimmed, ok := trimAll(s.MavenProperties); ok {
			info.MavenProperties = trimmed
		} else {
			log.Warn(ctx, nil, "mavenProperties setting rejected, contains empty element",
				"projectID", info.ProjectID)
		}
	}

	if s.WatchedFiles != nil {
		if s.WatchedFiles.IncludeFiles != nil {
			if trimmed, ok := trimAll(s.WatchedFiles.IncludeFiles); ok {
				info.WatchedFiles = trimmed
			} else {
				log.Warn(ctx, nil, "watchedFiles.includeFiles setting rejected, contains empty element",
					"projectID", info.ProjectID)
			}
		}
		if s.WatchedFiles.ExcludeFiles != nil {
			if trimmed, ok := trimAll(s.WatchedFiles.ExcludeFiles); ok {
				info.IgnoredFiles = trimmed
			} else {
				log.Warn(ctx, nil, "watchedFiles.excludeFiles setting rejected, contains empty element",
					"projectID", info.ProjectID)
			}
		}
	}
}

// applyDefaults fills handler defaults for fields the settings document
// does not override. internalPort replaces any default app port, so the
// default is only consulted when the setting is absent.
func applyDefaults(info *types.ProjectInfo, h project.Handler, s *types.ProjectSettings) {
	internalPort := ""
	if s != nil {
		internalPort = strings.TrimSpace(s.InternalPort.String())
	}

	switch {
	case internalPort != "":
		info.AppPorts = info.AppPorts[:0]
		info.AppPorts = append(info.AppPorts, internalPort)
	case len(info.AppPorts) == 0:
		info.AppPorts = append(info.AppPorts, h.DefaultAppPorts()...)
	}

	// Prior value wins over the handler default.
	if info.DebugPort == "" {
		info.DebugPort = h.DefaultDebugPort()
	}
	if len(info.IgnoredPaths) == 0 {
		info.IgnoredPaths = h.DefaultIgnoredPaths()
	}
}

// NormalizePath normalises a context-root or health-check path to have
// exactly one leading slash and no trailing slash. A blank input maps
// to "/". Edge whitespace and slashes are trimmed together so mixed
// edges like "/ api /" normalise cleanly.
func NormalizePath(p string) string {
	trimmed := strings.Trim(p, "/ \t\r\n")
	if trimmed == "" {
		return "/"
	}
	return "/" + trimmed
}

// trimAll trims every element; it reports false when any element is
// empty after trimming, in which case the whole setting is rejected.
func trimAll(values []string) ([]string, bool) {
	if len(values) == 0 {
		return nil, false
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		t := strings.TrimSpace(v)
		if t == "" {
			return nil, false
		}
		out = append(out, t)
	}
	return out, true
}

func dropEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
