package detect

import (
	"regexp"

	"webtrap/pkg/models"
)

// Fixed injection probe matchers. A single match anywhere in the
// request is sufficient to classify it as a probe.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)union\s+(all\s+)?select`),
	regexp.MustCompile(`(?i)'\s*(or|and)\s*'?\w+'?\s*=`),
	regexp.MustCompile(`(?i)\b(sleep|benchmark|pg_sleep)\s*\(`),
	regexp.MustCompile(`(?i)waitfor\s+delay`),
	regexp.MustCompile(`(?i)\bload_file\s*\(`),
	regexp.MustCompile(`(?i)into\s+(out|dump)file`),
	regexp.MustCompile(`(?i)\b(information_schema|sysobjects|pg_catalog)\b`),
	regexp.MustCompile(`(?i)0x[0-9a-f]{8,}`),
	regexp.MustCompile(`(?i)char\s*\(\s*\d+(\s*,\s*\d+)+\s*\)`),
	regexp.MustCompile(`(?i);\s*(drop|truncate|delete)\s`),
	regexp.MustCompile(`(?i)--\s*$`),
}

// DetectInjection tests query parameters, body fields, the raw path,
// and the cookie header against the probe matchers.
func DetectInjection(req *models.RequestDescriptor) bool {
	if req == nil {
		return false
	}

	candidates := make([]string, 0, len(req.Query)+len(req.Body)+2)
	for _, v := range req.Query {
		candidates = append(candidates, v)
	}
	for _, v := range req.Body {
		candidates = append(candidates, v)
	}
	candidates = append(candidates, req.Path)
	if cookie := req.Cookie(); cookie != "" {
		candidates = append(candidates, cookie)
	}

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		for _, pattern := range injectionPatterns {
			if pattern.MatchString(candidate) {
				return true
			}
		}
	}
	return false
}
