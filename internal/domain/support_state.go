package domain

import "time"

// SupportStage is the resolution stage of a conversation.
type SupportStage string

const (
	StageAnalyzing            SupportStage = "analyzing"
	StageTroubleshooting      SupportStage = "troubleshooting"
	StageCollectingInfo       SupportStage = "collecting_info"
	StageRequestingPermission SupportStage = "requesting_permission"
	StageEscalating           SupportStage = "escalating"
	StageCreatingTicket       SupportStage = "creating_ticket"
	StageCheckingJira         SupportStage = "checking_jira"
	StageGeneralChat          SupportStage = "general_chat"
	StageCompleted            SupportStage = "completed"
)

var supportStages = map[SupportStage]struct{}{
	StageAnalyzing:            {},
	StageTroubleshooting:      {},
	StageCollectingInfo:       {},
	StageRequestingPermission: {},
	StageEscalating:           {},
	StageCreatingTicket:       {},
	StageCheckingJira:         {},
	StageGeneralChat:          {},
	StageCompleted:            {},
}

// Valid reports whether the stage belongs to the closed stage set.
func (s SupportStage) Valid() bool {
	_, ok := supportStages[s]
	return ok
}

// SystemInfo describes the user's device as reported in chat.
type SystemInfo struct {
	OS         string `json:"os,omitempty"`
	RAM        string `json:"ram,omitempty"`
	Storage    string `json:"storage,omitempty"`
	DeviceAge  string `json:"deviceAge,omitempty"`
	DeviceType string `json:"deviceType,omitempty"`
	Raw        string `json:"raw,omitempty"`
}

// TicketDetails is a drafted ticket, or the submitted one once Key is set.
type TicketDetails struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Priority    TicketPriority `json:"priority"`
	Category    string         `json:"category"`
	Project     string         `json:"project,omitempty"`
	ProjectID   string         `json:"projectId,omitempty"`
	Key         string         `json:"key,omitempty"`
	URL         string         `json:"url,omitempty"`
	Status      TicketStatus   `json:"status,omitempty"`
}

// Submitted reports whether the details describe a ticket that exists upstream.
func (t *TicketDetails) Submitted() bool {
	return t != nil && t.Status != ""
}

// SupportState is the per-conversation resolution state.
type SupportState struct {
	UserID           string         `json:"userId"`
	ConversationID   string         `json:"conversationId"`
	Issue            string         `json:"issue"`
	Attempts         int            `json:"attempts"`
	Solutions        []string       `json:"solutions"`
	UserFeedback     []string       `json:"userFeedback"`
	CurrentStage     SupportStage   `json:"currentStage"`
	LastMessage      string         `json:"lastMessage"`
	SystemInfo       *SystemInfo    `json:"systemInfo,omitempty"`
	TicketPermission *bool          `json:"ticketPermission,omitempty"`
	TicketDetails    *TicketDetails `json:"ticketDetails,omitempty"`
	JiraConnected    bool           `json:"jiraConnected"`

	// Version is the optimistic concurrency counter of the stored row.
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// NewSupportState starts a conversation in the analyzing stage.
func NewSupportState(userID, conversationID, issue string, connected bool, now time.Time) *SupportState {
	return &SupportState{
		UserID:         userID,
		ConversationID: conversationID,
		Issue:          issue,
		Solutions:      []string{},
		UserFeedback:   []string{},
		CurrentStage:   StageAnalyzing,
		JiraConnected:  connected,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// HasPermission reports whether the user explicitly consented to a ticket.
func (s *SupportState) HasPermission() bool {
	return s.TicketPermission != nil && *s.TicketPermission
}

// SetPermission records consent, or clears it when value is nil.
func (s *SupportState) SetPermission(value *bool) {
	if value == nil {
		s.TicketPermission = nil
		return
	}
	v := *value
	s.TicketPermission = &v
}

// Clone returns a deep copy so a turn never mutates its input.
func (s *SupportState) Clone() *SupportState {
	if s == nil {
		return nil
	}
	out := *s
	out.Solutions = append([]string{}, s.Solutions...)
	out.UserFeedback = append([]string{}, s.UserFeedback...)
	if s.SystemInfo != nil {
		info := *s.SystemInfo
		out.SystemInfo = &info
	}
	if s.TicketPermission != nil {
		perm := *s.TicketPermission
		out.TicketPermission = &perm
	}
	if s.TicketDetails != nil {
		details := *s.TicketDetails
		out.TicketDetails = &details
	}
	return &out
}

// MessageRole identifies the author of a transcript message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatMessage is one entry of the append-only transcript.
type ChatMessage struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
}
