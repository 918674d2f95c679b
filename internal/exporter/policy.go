package exporter

import (
	"strconv"
	"strings"
)

// allowed applies the deny spec first, then the allow spec. With no allow
// spec every port not denied is allowed.
func (m *Manager) allowed(port int) bool {
	if m.cfg.DenyPorts != "" && portSpecMatches(port, m.cfg.DenyPorts) {
		return false
	}

	if m.cfg.AllowPorts != "" {
		return portSpecMatches(port, m.cfg.AllowPorts)
	}

	return true
}

// portSpecMatches reports whether port is covered by a comma separated spec
// of single ports and inclusive ranges, e.g. "80,443,8000-8999". Entries
// that fail to parse are skipped.
func portSpecMatches(port int, spec string) bool {
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)

		lo, hi, ok := strings.Cut(part, "-")
		if ok {
			start, err1 := strconv.Atoi(strings.TrimSpace(lo))
			end, err2 := strconv.Atoi(strings.TrimSpace(hi))
			if err1 == nil && err2 == nil && port >= start && port <= end {
				return true
			}
			continue
		}

		if p, err := strconv.Atoi(part); err == nil && p == port {
			return true
		}
	}

	return false
}
