package domain

import (
	"regexp"
	"strings"
)

// MissingReportFilter recognises placeholder lines declaring a station report
// missing, e.g. "60390 NIL=". Such lines must never reach the encoder.
type MissingReportFilter struct {
	re *regexp.Regexp
}

// NewMissingReportFilter builds a filter for lines that begin with
// stationPrefix (the WMO block of the stations) and contain marker as a
// standalone token.
func NewMissingReportFilter(stationPrefix, marker string) MissingReportFilter {
	stationPrefix = strings.TrimSpace(stationPrefix)
	marker = strings.TrimSpace(marker)
	if stationPrefix == "" || marker == "" {
		return MissingReportFilter{}
	}
	expr := `^\s*` + regexp.QuoteMeta(stationPrefix) + `.*(^|[^A-Za-z0-9])` + regexp.QuoteMeta(marker) + `([^A-Za-z0-9]|$)`
	return MissingReportFilter{re: regexp.MustCompile(expr)}
}

// IsMissing reports whether line is a missing-report placeholder.
func (f MissingReportFilter) IsMissing(line string) bool {
	if f.re == nil {
		return false
	}
	return f.re.MatchString(line)
}
