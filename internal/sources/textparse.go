package sources

import (
	"regexp"
	"strconv"
	"strings"
)

// serviceLine matches the CLI's plaintext listing: "- name : id (Description)".
var serviceLine = regexp.MustCompile(`^-\s*(.+?)\s*:\s*([0-9]+)\s*\((.*?)\)\s*$`)

// ParsedService is one service entry recovered from plaintext output.
type ParsedService struct {
	ServiceID   int64  `json:"service_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ServicesDocument is the structured shape the plaintext listing converts to,
// matching what the JSON query output looks like.
type ServicesDocument struct {
	Services []ParsedService `json:"services"`
}

// ParseServicesText converts the plaintext all-services listing into the
// structured services document. Returns nil when no service lines were
// recognized, which callers treat as "not this format".
func ParseServicesText(raw string) *ServicesDocument {
	var services []ParsedService
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "-") {
			continue
		}
		m := serviceLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		id, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			continue
		}
		services = append(services, ParsedService{
			ServiceID:   id,
			Name:        strings.TrimSpace(m[1]),
			Description: strings.TrimSpace(m[3]),
		})
	}

	if len(services) == 0 {
		return nil
	}
	return &ServicesDocument{Services: services}
}
