package domain

import (
	"testing"
	"time"
)

func sampleProjects() []Project {
	return []Project{
		{ID: "cloud-1", Name: "Helpdesk Operations", URL: "https://ops.example.net"},
		{ID: "cloud-2", Name: "Infrastructure", URL: "https://infra.example.net"},
	}
}

func TestNormalizeKeepsMemberDefault(t *testing.T) {
	conn := &Connection{AvailableProjects: sampleProjects(), DefaultProject: &Project{ID: "cloud-2"}}
	conn.Normalize()
	if conn.DefaultProject == nil || conn.DefaultProject.ID != "cloud-2" {
		t.Fatalf("expected cloud-2 default, got %+v", conn.DefaultProject)
	}
	if conn.DefaultProject.Name != "Infrastructure" {
		t.Fatalf("expected default to be refreshed from available projects, got %q", conn.DefaultProject.Name)
	}
}

func TestNormalizeReplacesForeignDefault(t *testing.T) {
	conn := &Connection{AvailableProjects: sampleProjects(), DefaultProject: &Project{ID: "gone"}}
	conn.Normalize()
	if conn.DefaultProject == nil || conn.DefaultProject.ID != "cloud-1" {
		t.Fatalf("expected first project as default, got %+v", conn.DefaultProject)
	}

	empty := &Connection{}
	empty.Normalize()
	if empty.DefaultProject != nil {
		t.Fatalf("expected no default without projects, got %+v", empty.DefaultProject)
	}
}

func TestFindProjectCaseInsensitiveSubstring(t *testing.T) {
	conn := &Connection{AvailableProjects: sampleProjects()}

	p, ok := conn.FindProject("INFRA")
	if !ok || p.ID != "cloud-2" {
		t.Fatalf("expected infrastructure project, got %+v ok=%v", p, ok)
	}
	if _, ok := conn.FindProject("payroll"); ok {
		t.Fatalf("expected no match for payroll")
	}
	if _, ok := conn.FindProject("  "); ok {
		t.Fatalf("expected blank name to never match")
	}
}

func TestActiveProjectFallsBackToFirst(t *testing.T) {
	conn := &Connection{AvailableProjects: sampleProjects()}
	p, ok := conn.ActiveProject()
	if !ok || p.ID != "cloud-1" {
		t.Fatalf("expected fallback to first project, got %+v", p)
	}
	if _, ok := (&Connection{}).ActiveProject(); ok {
		t.Fatalf("expected no active project")
	}
}

func TestSummaryReportsExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conn := &Connection{
		Status:            ConnectionStatusConnected,
		AccessToken:       "at",
		ExpiresAt:         now.Add(-time.Minute),
		AvailableProjects: sampleProjects(),
	}
	conn.Normalize()

	summary := conn.Summary(now)
	if summary.Connected {
		t.Fatalf("expected expired connection to report not connected")
	}
	if !summary.Expired || summary.Status != ConnectionStatusConnected {
		t.Fatalf("unexpected summary %+v", summary)
	}

	conn.ExpiresAt = now.Add(time.Hour)
	if !conn.Summary(now).Connected {
		t.Fatalf("expected live connection to report connected")
	}
}

func TestOAuthStateExpired(t *testing.T) {
	now := time.Now()
	st := OAuthState{Timestamp: now, ExpiresAt: now.Add(HandshakeTTL)}
	if st.Expired(now.Add(14 * time.Minute)) {
		t.Fatalf("expected handshake valid within window")
	}
	if !st.Expired(now.Add(16 * time.Minute)) {
		t.Fatalf("expected handshake expired after window")
	}
}

func TestSupportStateCloneIsDeep(t *testing.T) {
	yes := true
	st := NewSupportState("u1", "c1", "printer jam", false, time.Now())
	st.Solutions = append(st.Solutions, "restart")
	st.TicketPermission = &yes
	st.SystemInfo = &SystemInfo{OS: "Windows 11"}

	cp := st.Clone()
	cp.Solutions[0] = "changed"
	*cp.TicketPermission = false
	cp.SystemInfo.OS = "macOS"

	if st.Solutions[0] != "restart" || !*st.TicketPermission || st.SystemInfo.OS != "Windows 11" {
		t.Fatalf("clone shares memory with original: %+v", st)
	}
	if !SupportStage("checking_jira").Valid() || SupportStage("closed").Valid() {
		t.Fatalf("stage validation mismatch")
	}
}
