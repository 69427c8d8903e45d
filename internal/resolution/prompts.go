package resolution

import (
	"fmt"
	"strings"

	"github.com/deskflow/helpdesk-assistant/internal/domain"
)

const assistantPersona = "You are a friendly, precise IT helpdesk assistant. Keep answers short, use numbered steps for instructions, and never invent ticket numbers."

func writeContext(b *strings.Builder, st *domain.SupportState, message string) {
	b.WriteString(assistantPersona)
	b.WriteString("\n\n")
	fmt.Fprintf(b, "Reported issue: %s\n", strings.TrimSpace(st.Issue))
	if info := formatSystemInfo(st.SystemInfo); info != "" {
		fmt.Fprintf(b, "System information:\n%s", info)
	}
	fmt.Fprintf(b, "Troubleshooting attempts so far: %d\n", st.Attempts)
	if len(st.Solutions) > 0 {
		b.WriteString("Previously suggested solutions (do not repeat them):\n")
		for i, s := range st.Solutions {
			fmt.Fprintf(b, "%d. %s\n", i+1, firstLine(s))
		}
	}
	fmt.Fprintf(b, "Latest user message: %s\n\n", strings.TrimSpace(message))
}

func collectInfoPrompt(st *domain.SupportState, message string) string {
	var b strings.Builder
	writeContext(&b, st, message)
	b.WriteString("Before troubleshooting, ask the user for their operating system, RAM, storage, ")
	b.WriteString("device age and device type (laptop, desktop, etc.). Acknowledge the problem in one sentence, ")
	b.WriteString("then list the five items to provide.")
	return b.String()
}

func analyzePrompt(st *domain.SupportState, message string) string {
	var b strings.Builder
	writeContext(&b, st, message)
	b.WriteString("Analyze the issue using the system information. Give the most likely cause and ")
	b.WriteString("three to five concrete troubleshooting steps suited to this device and operating system. ")
	b.WriteString("End by asking the user to report back whether the steps worked.")
	return b.String()
}

func solutionPrompt(st *domain.SupportState, message string, declined bool) string {
	var b strings.Builder
	writeContext(&b, st, message)
	if declined {
		b.WriteString("The user declined to open a support ticket. Respect that, ")
		b.WriteString("and offer a different approach than the previous solutions. ")
	} else {
		b.WriteString("The previous steps did not fully resolve the issue. ")
		b.WriteString("Suggest the next most likely fix, different from the previous solutions. ")
	}
	b.WriteString("Keep it to at most five steps and ask the user to report back.")
	return b.String()
}

func requestPermissionPrompt(st *domain.SupportState, message string, draft *domain.TicketDetails) string {
	var b strings.Builder
	writeContext(&b, st, message)
	b.WriteString("Troubleshooting has not resolved the issue. Offer to create a support ticket in the ")
	b.WriteString("connected ticketing system. Summarize the ticket below and ask the user to reply yes to create it or no to keep troubleshooting.\n\n")
	writeDraft(&b, draft)
	return b.String()
}

func escalatePrompt(st *domain.SupportState, message string, draft *domain.TicketDetails) string {
	var b strings.Builder
	writeContext(&b, st, message)
	b.WriteString("Troubleshooting has not resolved the issue and no ticketing system is connected, so a ticket cannot be created yet. ")
	b.WriteString("Explain that the user can connect their ticketing account with the button below, and present the drafted ticket ")
	b.WriteString("so they can also forward it to their IT team.\n\n")
	writeDraft(&b, draft)
	return b.String()
}

func ticketCreatedPrompt(st *domain.SupportState, ticket *domain.Ticket) string {
	var b strings.Builder
	b.WriteString(assistantPersona)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "A support ticket was just created for the issue: %s\n", strings.TrimSpace(st.Issue))
	fmt.Fprintf(&b, "Ticket key: %s\nProject: %s\nPriority: %s\n", ticket.ExternalKey, ticket.Project, ticket.Priority)
	if ticket.URL != "" {
		fmt.Fprintf(&b, "Link: %s\n", ticket.URL)
	}
	b.WriteString("\nConfirm the ticket to the user in two or three sentences, quoting the key exactly, and tell them what happens next.")
	return b.String()
}

func checkConnectionPrompt(st *domain.SupportState, message string, summary domain.ConnectionSummary) string {
	var b strings.Builder
	b.WriteString(assistantPersona)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "The user asked about their ticketing integration: %s\n", strings.TrimSpace(message))
	switch {
	case summary.Connected:
		b.WriteString("Status: connected.\n")
		if summary.DefaultProject != nil {
			fmt.Fprintf(&b, "Tickets are created in: %s\n", summary.DefaultProject.Name)
		}
		if len(summary.AvailableProjects) > 1 {
			names := make([]string, 0, len(summary.AvailableProjects))
			for _, p := range summary.AvailableProjects {
				names = append(names, p.Name)
			}
			fmt.Fprintf(&b, "Other available projects: %s\n", strings.Join(names, ", "))
		}
	case summary.Expired:
		b.WriteString("Status: the connection has expired and could not be renewed. The user must reconnect.\n")
	default:
		b.WriteString("Status: not connected. The user can connect with the button below.\n")
	}
	if st.Issue != "" {
		fmt.Fprintf(&b, "Their open issue is: %s\n", strings.TrimSpace(st.Issue))
	}
	b.WriteString("\nAnswer the question in at most three sentences.")
	return b.String()
}

func generalChatPrompt(st *domain.SupportState, message string) string {
	var b strings.Builder
	b.WriteString(assistantPersona)
	b.WriteString("\n\n")
	if st.Issue != "" && st.Issue != message {
		fmt.Fprintf(&b, "Context: the conversation is about: %s\n", strings.TrimSpace(st.Issue))
	}
	fmt.Fprintf(&b, "User says: %s\n\nReply briefly and naturally, and invite them to describe any IT problem.", strings.TrimSpace(message))
	return b.String()
}

func writeDraft(b *strings.Builder, draft *domain.TicketDetails) {
	fmt.Fprintf(b, "Ticket title: %s\nPriority: %s\nCategory: %s\nDescription:\n%s\n",
		draft.Title, draft.Priority, draft.Category, draft.Description)
}
