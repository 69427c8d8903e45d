package resolution

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/deskflow/helpdesk-assistant/internal/domain"
)

const (
	defaultCategory = "Technical Support"
	maxTitleRunes   = 80
	recentFeedback  = 3
)

// PriorityForAttempts derives ticket priority from troubleshooting attempts.
func PriorityForAttempts(attempts int) domain.TicketPriority {
	switch {
	case attempts >= 3:
		return domain.TicketPriorityHigh
	case attempts == 2:
		return domain.TicketPriorityMedium
	default:
		return domain.TicketPriorityLow
	}
}

type categoryRule struct {
	keywords []string
	category string
}

// categoryRules is scanned in order against the issue text.
var categoryRules = []categoryRule{
	{keywords: []string{"virus", "malware", "phishing", "ransomware", "hacked", "security"}, category: "Security"},
	{keywords: []string{"password", "login", "log in", "sign in", "locked out", "account", "mfa", "2fa", "permission denied"}, category: "Account & Access"},
	{keywords: []string{"wifi", "wi fi", "internet", "network", "vpn", "ethernet", "router", "dns"}, category: "Network Issue"},
	{keywords: []string{"email", "outlook", "inbox", "mail", "calendar"}, category: "Email & Collaboration"},
	{keywords: []string{"printer", "print", "printing", "scanner"}, category: "Printer"},
	{keywords: []string{"camera", "webcam", "keyboard", "mouse", "monitor", "screen", "display", "battery", "charger", "usb", "headset", "microphone", "speaker", "hardware"}, category: "Hardware Issue"},
	{keywords: []string{"install", "installation", "update", "upgrade", "crash", "crashes", "software", "app", "application", "license"}, category: "Software Issue"},
	{keywords: []string{"slow", "performance", "freeze", "freezes", "frozen", "lag", "hangs"}, category: "Performance"},
}

// CategoryForIssue returns the first matching category, or the default.
func CategoryForIssue(issue string) string {
	text := normalize(issue)
	for _, rule := range categoryRules {
		if containsAny(text, rule.keywords) {
			return rule.category
		}
	}
	return defaultCategory
}

// DraftTicket builds the ticket proposal from the accumulated state.
func DraftTicket(st *domain.SupportState) *domain.TicketDetails {
	return &domain.TicketDetails{
		Title:       ticketTitle(st.Issue),
		Description: ticketDescription(st),
		Priority:    PriorityForAttempts(st.Attempts),
		Category:    CategoryForIssue(st.Issue),
	}
}

func ticketTitle(issue string) string {
	title := strings.Join(strings.Fields(issue), " ")
	if title == "" {
		return "Support request"
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		runes := []rune(title)
		title = strings.TrimSpace(string(runes[:maxTitleRunes-3])) + "..."
	}
	return title
}

func ticketDescription(st *domain.SupportState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Issue reported: %s\n", strings.TrimSpace(st.Issue))
	if info := formatSystemInfo(st.SystemInfo); info != "" {
		fmt.Fprintf(&b, "\nSystem information:\n%s", info)
	}
	fmt.Fprintf(&b, "\nTroubleshooting attempts: %d\n", st.Attempts)
	if len(st.Solutions) > 0 {
		b.WriteString("\nSteps already suggested:\n")
		for i, s := range st.Solutions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, firstLine(s))
		}
	}
	if feedback := tail(st.UserFeedback, recentFeedback); len(feedback) > 0 {
		b.WriteString("\nRecent user feedback:\n")
		for _, f := range feedback {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return strings.TrimSpace(b.String())
}

func formatSystemInfo(info *domain.SystemInfo) string {
	if info == nil {
		return ""
	}
	var b strings.Builder
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "- %s: %s\n", label, value)
		}
	}
	field("Operating system", info.OS)
	field("RAM", info.RAM)
	field("Storage", info.Storage)
	field("Device age", info.DeviceAge)
	field("Device type", info.DeviceType)
	if b.Len() == 0 && info.Raw != "" {
		fmt.Fprintf(&b, "- As described: %s\n", info.Raw)
	}
	return b.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if utf8.RuneCountInString(s) > 160 {
		s = string([]rune(s)[:157]) + "..."
	}
	return s
}

func tail(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
