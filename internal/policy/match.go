package policy

import "strings"

// matchResource matches a resource path such as "task/t1/step/s2" against
// a rule pattern with * and ** segments.
func matchResource(resource, pattern string) bool {
	return matchSegments(strings.Split(resource, "/"), strings.Split(pattern, "/"))
}

func matchSegments(resource, pattern []string) bool {
	if len(pattern) == 0 {
		return len(resource) == 0
	}

	head := pattern[0]
	rest := pattern[1:]

	if head == "**" {
		if len(rest) == 0 {
			return true
		}
		for i := 0; i <= len(resource); i++ {
			if matchSegments(resource[i:], rest) {
				return true
			}
		}
		return false
	}

	if len(resource) == 0 {
		return false
	}
	if !matchToken(resource[0], head) {
		return false
	}
	return matchSegments(resource[1:], rest)
}

// matchToken matches a single segment (or an agent id or action name)
// against a pattern that may contain * wildcards.
func matchToken(token, pattern string) bool {
	if pattern == "*" || pattern == token {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}

	parts := strings.Split(pattern, "*")
	pos := 0
	for i, part := range parts {
		if part == "" {
			continue
		}
		switch {
		case i == 0:
			if !strings.HasPrefix(token, part) {
				return false
			}
			pos = len(part)
		case i == len(parts)-1 && !strings.HasSuffix(pattern, "*"):
			if !strings.HasSuffix(token[pos:], part) {
				return false
			}
		default:
			idx := strings.Index(token[pos:], part)
			if idx == -1 {
				return false
			}
			pos += idx + len(part)
		}
	}
	return true
}
