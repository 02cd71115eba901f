package clinical

import "strings"

// ApoE4Status is the patient's ApoE ε4 genotype.
type ApoE4Status string

const (
	ApoE4Unknown      ApoE4Status = "Unknown"
	ApoE4Noncarrier   ApoE4Status = "Noncarrier"
	ApoE4Heterozygote ApoE4Status = "Heterozygote"
	ApoE4Homozygote   ApoE4Status = "Homozygote"
)

var apoE4Statuses = []ApoE4Status{ApoE4Unknown, ApoE4Noncarrier, ApoE4Heterozygote, ApoE4Homozygote}

// ParseApoE4Status parses a genotype label. An empty string is Unknown.
func ParseApoE4Status(s string) (ApoE4Status, error) {
	if strings.TrimSpace(s) == "" {
		return ApoE4Unknown, nil
	}
	return parseEnum(s, "ApoE ε4 status", apoE4Statuses)
}

// RiskNote returns the ARIA risk note shown next to the genotype.
func (s ApoE4Status) RiskNote() string {
	switch s {
	case ApoE4Noncarrier:
		return "Lower ARIA Risk"
	case ApoE4Heterozygote:
		return "Moderate ARIA Risk"
	case ApoE4Homozygote:
		return "High ARIA Risk"
	default:
		return "ARIA risk not assessed"
	}
}
