// Package registry keeps the set of tools the server exposes.
package registry

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/tools"
	"github.com/sirupsen/logrus"
)

const EnvDisabledTools = "DISABLED_TOOLS"

// Registry maps tool names to implementations. Tools listed in
// DISABLED_TOOLS are never registered.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]tools.Tool
	disabled map[string]bool
	logger   *logrus.Logger
}

func New(logger *logrus.Logger) *Registry {
	r := &Registry{
		tools:  make(map[string]tools.Tool),
		logger: logger,
	}
	r.disabled = parseDisabledTools(os.Getenv(EnvDisabledTools), logger)
	return r
}

// parseDisabledTools reads a comma separated tool list. Names are compared
// after normalisation, so "sheet-query" disables "sheet_query".
func parseDisabledTools(value string, logger *logrus.Logger) map[string]bool {
	disabled := make(map[string]bool)
	for tool := range strings.SplitSeq(value, ",") {
		tool = normaliseName(tool)
		if tool == "" {
			continue
		}
		disabled[tool] = true
		logger.WithField("tool", tool).Debug("Tool disabled")
	}
	return disabled
}

func normaliseName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
}

// Register adds tool unless it is disabled. It reports whether the tool was
// added.
func (r *Registry) Register(tool tools.Tool) bool {
	name := tool.Definition().Name
	if r.disabled[normaliseName(name)] {
		r.logger.WithField("tool", name).Debug("Tool not registered (disabled)")
		return false
	}

	r.mu.Lock()
	r.tools[name] = tool
	r.mu.Unlock()

	r.logger.WithField("tool", name).Debug("Tool successfully registered")
	return true
}

// Get looks a tool up by name. Kebab-case names resolve to their snake_case
// registration.
func (r *Registry) Get(name string) (tools.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if tool, ok := r.tools[name]; ok {
		return tool, true
	}
	tool, ok := r.tools[strings.ReplaceAll(name, "-", "_")]
	return tool, ok
}

// Tools returns a snapshot of every registered tool.
func (r *Registry) Tools() map[string]tools.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]tools.Tool, len(r.tools))
	for name, tool := range r.tools {
		out[name] = tool
	}
	return out
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NamesWithExtendedHelp returns the sorted names of tools implementing
// tools.ExtendedHelpProvider.
func (r *Registry) NamesWithExtendedHelp() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, tool := range r.tools {
		if _, ok := tool.(tools.ExtendedHelpProvider); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
