package assistant

import "strings"

// fallbackRule maps a keyword group to the capability forced when the model
// answers in plain text but the message clearly asks for domain data.
type fallbackRule struct {
	keywords   []string
	capability string
}

// fallbackRules is scanned in order; the first matching group wins.
var fallbackRules = []fallbackRule{
	{keywords: []string{"players", "members"}, capability: "listTeamMembers"},
	{keywords: []string{"fixtures"}, capability: "getAllFixtures"},
	{keywords: []string{"products", "merchandise"}, capability: "listProducts"},
	{keywords: []string{"transactions", "payments"}, capability: "listTransactions"},
}

// FallbackCapability scans the lowercased message against the keyword table
// and returns the capability to force, if any.
func FallbackCapability(message string) (string, bool) {
	lowered := strings.ToLower(message)
	for _, rule := range fallbackRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lowered, keyword) {
				return rule.capability, true
			}
		}
	}
	return "", false
}
