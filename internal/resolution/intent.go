package resolution

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/deskflow/helpdesk-assistant/internal/domain"
)

// Intent is the classified purpose of an inbound message.
type Intent string

const (
	IntentCheckJira         Intent = "check_jira"
	IntentGeneralChat       Intent = "general_chat"
	IntentCollectInfo       Intent = "collect_info"
	IntentCreateTicket      Intent = "create_ticket"
	IntentProvideSolution   Intent = "provide_solution"
	IntentRequestPermission Intent = "request_permission"
	IntentEscalate          Intent = "escalate"
	IntentAnalyze           Intent = "analyze"
)

// AllIntents lists every intent the transition table must cover.
var AllIntents = []Intent{
	IntentCheckJira,
	IntentGeneralChat,
	IntentCollectInfo,
	IntentCreateTicket,
	IntentProvideSolution,
	IntentRequestPermission,
	IntentEscalate,
	IntentAnalyze,
}

const (
	shortMessageLimit = 10
	escalationAttempt = 3
)

// Input is what classification sees for one turn.
type Input struct {
	State     *domain.SupportState
	Message   string
	Connected bool
	// Withdrawn marks a message that took back previously recorded consent.
	Withdrawn bool
}

// Rule maps a predicate to an intent. Rules are evaluated top to bottom.
type Rule struct {
	Name   string
	Match  func(Input) bool
	Intent Intent
}

// Rules is the ordered classification table; the first match wins.
var Rules = []Rule{
	{Name: "connection_query", Match: isConnectionQuery, Intent: IntentCheckJira},
	{Name: "greeting_or_short", Match: isGreetingOrShort, Intent: IntentGeneralChat},
	{Name: "consent_withdrawn", Match: func(in Input) bool { return in.Withdrawn }, Intent: IntentProvideSolution},
	{Name: "needs_system_info", Match: needsSystemInfo, Intent: IntentCollectInfo},
	{Name: "consent_recorded", Match: func(in Input) bool { return in.State.HasPermission() }, Intent: IntentCreateTicket},
	{Name: "permission_granted", Match: func(in Input) bool { return awaitingPermission(in) && isAffirmative(in.Message) }, Intent: IntentCreateTicket},
	{Name: "permission_declined", Match: func(in Input) bool { return awaitingPermission(in) && isDecline(in.Message) }, Intent: IntentProvideSolution},
	{Name: "escalation_connected", Match: func(in Input) bool { return shouldEscalate(in) && in.Connected }, Intent: IntentRequestPermission},
	{Name: "escalation_unconnected", Match: func(in Input) bool { return shouldEscalate(in) && !in.Connected }, Intent: IntentEscalate},
	{Name: "first_analysis", Match: func(in Input) bool { return in.State.SystemInfo != nil && in.State.Attempts == 0 }, Intent: IntentAnalyze},
}

// Classify returns the intent for message given the conversation state.
func Classify(state *domain.SupportState, message string, connected bool) Intent {
	intent, _ := classify(Input{State: state, Message: message, Connected: connected})
	return intent
}

func classify(in Input) (Intent, string) {
	for _, rule := range Rules {
		if rule.Match(in) {
			return rule.Intent, rule.Name
		}
	}
	return IntentProvideSolution, "default"
}

var (
	connectionNouns = []string{"jira", "integration", "ticketing system", "atlassian"}
	connectionWords = []string{
		"connected", "connect", "connection", "status", "linked", "link",
		"integrated", "authorized", "authorised", "set up", "setup", "configured", "hooked up",
	}
	greetings = []string{
		"hi", "hello", "hey", "hiya", "yo", "good morning", "good afternoon", "good evening",
		"thanks", "thank you", "thx", "bye", "goodbye", "cheers",
	}
	greetingFillers = map[string]struct{}{
		"there": {}, "again": {}, "all": {}, "everyone": {}, "team": {}, "folks": {},
		"so": {}, "much": {}, "a": {}, "lot": {}, "very": {}, "you": {},
	}
	affirmatives = []string{"yes", "yeah", "yep", "yup", "ok", "okay", "sure", "create", "please", "go ahead", "do it"}
	declines     = []string{"no", "nope", "not now", "later", "don't", "do not", "dont", "cancel", "never mind", "nevermind"}
	escalations  = []string{
		"still", "doesn't work", "does not work", "not working", "didn't work", "did not work",
		"didn't help", "did not help", "not fixed", "same problem", "same issue", "nothing works",
		"give up", "escalate", "human", "technician", "real person", "support team", "open a ticket",
		"raise a ticket", "create a ticket",
	}
)

func isConnectionQuery(in Input) bool {
	text := normalize(in.Message)
	return containsAny(text, connectionNouns) && containsAny(text, connectionWords)
}

func isGreetingOrShort(in Input) bool {
	trimmed := strings.TrimSpace(in.Message)
	if utf8.RuneCountInString(trimmed) < shortMessageLimit {
		return true
	}
	text := normalize(trimmed)
	for _, g := range greetings {
		if text == g {
			return true
		}
		if rest, ok := strings.CutPrefix(text, g+" "); ok && onlyFiller(rest) {
			return true
		}
	}
	return false
}

// onlyFiller reports whether every word is a pleasantry that can follow a
// greeting, as in "hello there" or "thank you so much".
func onlyFiller(text string) bool {
	for _, w := range strings.Fields(text) {
		if _, ok := greetingFillers[w]; !ok {
			return false
		}
	}
	return true
}

// needsSystemInfo fires on the first troubleshooting turn. A conversation
// that is awaiting or has given ticket consent is past that point.
func needsSystemInfo(in Input) bool {
	st := in.State
	return st.SystemInfo == nil &&
		st.Attempts == 0 &&
		st.CurrentStage != domain.StageRequestingPermission &&
		!st.HasPermission()
}

func awaitingPermission(in Input) bool {
	return in.State.CurrentStage == domain.StageRequestingPermission
}

func shouldEscalate(in Input) bool {
	return in.State.Attempts >= escalationAttempt || containsAny(normalize(in.Message), escalations)
}

func isAffirmative(message string) bool {
	text := normalize(message)
	return !containsAny(text, declines) && containsAny(text, affirmatives)
}

func isDecline(message string) bool {
	return containsAny(normalize(message), declines)
}

// normalize lowercases and reduces punctuation to single spaces, keeping apostrophes.
func normalize(s string) string {
	s = strings.ReplaceAll(strings.ToLower(s), "’", "'")
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// containsAny matches whole words or phrases in normalized text.
func containsAny(text string, phrases []string) bool {
	padded := " " + text + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}
