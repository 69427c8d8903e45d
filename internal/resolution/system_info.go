package resolution

import (
	"regexp"
	"strings"

	"github.com/deskflow/helpdesk-assistant/internal/domain"
)

var (
	osPattern      = regexp.MustCompile(`(?i)\b(windows\s*(?:1[01]|[78]|xp|vista)?|mac\s?os(?:\s*x)?|os\s?x|ubuntu(?:\s*\d+(?:\.\d+)?)?|fedora|debian|linux|chrome\s?os|ios\s*\d*|android\s*\d*)\b`)
	ramPattern     = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(gb|mb|g)\b\s*(?:of\s+)?(?:ram|memory)\b|\b(?:ram|memory)\b\s*(?:is|:|of)?\s*(\d+(?:\.\d+)?)\s*(gb|mb|g)\b`)
	storagePattern = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(tb|gb)\b\s*(ssd|hdd|nvme|storage|disk|drive|hard drive)\b|\b(ssd|hdd|storage|disk|drive)\b\s*(?:is|:|of)?\s*(\d+(?:\.\d+)?)\s*(tb|gb)\b`)
	agePattern     = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?|a|one|two|three|four|five|six)\s*(years?|yrs?|months?)\b(?:\s*old)?`)
	devicePattern  = regexp.MustCompile(`(?i)\b(laptop|notebook|desktop|macbook(?:\s+(?:air|pro))?|imac|chromebook|tablet|ipad|phone|iphone|workstation|pc)\b`)
)

// ParseSystemInfo extracts device details from a free-text reply. Fields
// that are not mentioned stay empty; the raw reply is always kept.
func ParseSystemInfo(message string) *domain.SystemInfo {
	info := &domain.SystemInfo{Raw: strings.TrimSpace(message)}

	if m := osPattern.FindString(message); m != "" {
		info.OS = collapse(m)
	}
	if m := ramPattern.FindStringSubmatch(message); m != nil {
		info.RAM = sizeFrom(m[1], m[2], m[3], m[4])
	}
	if m := storagePattern.FindStringSubmatch(message); m != nil {
		if m[1] != "" {
			info.Storage = collapse(m[1] + " " + strings.ToUpper(m[2]) + " " + m[3])
		} else {
			info.Storage = collapse(m[5] + " " + strings.ToUpper(m[6]) + " " + m[4])
		}
	}
	if m := agePattern.FindString(message); m != "" {
		info.DeviceAge = collapse(m)
	}
	if m := devicePattern.FindString(message); m != "" {
		info.DeviceType = strings.ToLower(collapse(m))
	}
	return info
}

func sizeFrom(amountA, unitA, amountB, unitB string) string {
	amount, unit := amountA, unitA
	if amount == "" {
		amount, unit = amountB, unitB
	}
	unit = strings.ToUpper(unit)
	if unit == "G" {
		unit = "GB"
	}
	return amount + " " + unit
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
