// Package models holds the row and wire types shared by the storage layer,
// the engines, and the HTTP boundary.
package models

import (
	"encoding/json"
	"time"
)

// Visibility of a project.
const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
)

// Workspace classes.
const (
	ClassAgent     = "agent"
	ClassDashboard = "dashboard"
)

// Mail priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Project is the tenant boundary.
type Project struct {
	ID             string     `json:"id"`
	TenantID       *string    `json:"tenant_id,omitempty"`
	Slug           string     `json:"slug"`
	Visibility     string     `json:"visibility"`
	ActivePolicyID *string    `json:"active_policy_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Repo is keyed by its canonical git origin and bound to one project forever.
type Repo struct {
	ID              string     `json:"id"`
	ProjectID       string     `json:"project_id"`
	CanonicalOrigin string     `json:"canonical_origin"`
	Name            string     `json:"name,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// Workspace is an agent's identity inside a project. The id equals the auth
// layer's agent id. Project, repo, alias, and class never change after
// creation.
type Workspace struct {
	ID            string     `json:"workspace_id"`
	ProjectID     string     `json:"project_id"`
	RepoID        *string    `json:"repo_id,omitempty"`
	Alias         string     `json:"alias"`
	HumanName     *string    `json:"human_name,omitempty"`
	MemberEmail   *string    `json:"member_email,omitempty"`
	Role          *string    `json:"role,omitempty"`
	Class         string     `json:"class"`
	CurrentBranch *string    `json:"current_branch,omitempty"`
	FocusBeadID   *string    `json:"focus_bead_id,omitempty"`
	Hostname      *string    `json:"hostname,omitempty"`
	WorkspacePath *string    `json:"workspace_path,omitempty"`
	Timezone      *string    `json:"timezone,omitempty"`
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`

	// Presence is computed from last_seen_at and the ephemeral store,
	// never persisted.
	Presence string `json:"presence,omitempty"`
}

// BeadRef addresses a bead, optionally in another repo/branch.
type BeadRef struct {
	Repo   string `json:"repo,omitempty"`
	Branch string `json:"branch,omitempty"`
	BeadID string `json:"bead_id"`
}

// Issue is the server-side mirror of a client bead, keyed by
// (project_id, bead_id). The client is the authority.
type Issue struct {
	ProjectID string     `json:"project_id"`
	BeadID    string     `json:"bead_id"`
	Title     string     `json:"title"`
	Body      string     `json:"body,omitempty"`
	Status    string     `json:"status"`
	Priority  int        `json:"priority"`
	Assignee  *string    `json:"assignee,omitempty"`
	Creator   *string    `json:"creator,omitempty"`
	Labels    []string   `json:"labels,omitempty"`
	Parent    *BeadRef   `json:"parent,omitempty"`
	BlockedBy []BeadRef  `json:"blocked_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// Claim records a workspace working a bead. Multiple claimants per bead are
// allowed when the client opts into jump-in.
type Claim struct {
	ProjectID   string    `json:"project_id"`
	BeadID      string    `json:"bead_id"`
	WorkspaceID string    `json:"workspace_id"`
	Alias       string    `json:"alias"`
	HumanName   *string   `json:"human_name,omitempty"`
	ApexBeadID  *string   `json:"apex_bead_id,omitempty"`
	ClaimedAt   time.Time `json:"claimed_at"`
}

// Claimant is the redacted view of a claim holder used in conflict replies.
type Claimant struct {
	Alias     string  `json:"alias"`
	HumanName *string `json:"human_name,omitempty"`
}

// Reservation is an advisory file lock living in the ephemeral store.
type Reservation struct {
	ProjectID   string    `json:"project_id"`
	Path        string    `json:"path"`
	WorkspaceID string    `json:"workspace_id"`
	Alias       string    `json:"alias"`
	Reason      string    `json:"reason,omitempty"`
	AcquiredAt  time.Time `json:"acquired_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Subscription asks for notifications about a bead.
type Subscription struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	WorkspaceID string    `json:"workspace_id"`
	BeadID      string    `json:"bead_id"`
	Repo        *string   `json:"repo,omitempty"`
	EventTypes  []string  `json:"event_types"`
	CreatedAt   time.Time `json:"created_at"`
}

// Outbox entry statuses.
const (
	OutboxPending    = "pending"
	OutboxProcessing = "processing"
	OutboxCompleted  = "completed"
	OutboxFailed     = "failed"
)

// OutboxEntry is a durable notification envelope co-committed with the event
// that produced it.
type OutboxEntry struct {
	ID             string          `json:"id"`
	ProjectID      string          `json:"project_id"`
	WorkspaceID    string          `json:"workspace_id"`
	Alias          string          `json:"alias"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	Fingerprint    string          `json:"fingerprint"`
	Attempts       int             `json:"attempts"`
	LastError      *string         `json:"last_error,omitempty"`
	Status         string          `json:"status"`
	NextAttemptAt  time.Time       `json:"next_attempt_at"`
	CreatedAt      time.Time       `json:"created_at"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
	DeliveredMsgID *string         `json:"delivered_message_id,omitempty"`
}

// PolicyInvariant is one rule in a policy bundle.
type PolicyInvariant struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// PolicyRole is a role playbook.
type PolicyRole struct {
	Title    string `json:"title"`
	Playbook string `json:"playbook"`
}

// PolicyBundle is the JSON document versioned per project.
type PolicyBundle struct {
	Invariants []PolicyInvariant          `json:"invariants"`
	Roles      map[string]PolicyRole      `json:"roles"`
	Adapters   map[string]json.RawMessage `json:"adapters,omitempty"`
}

// Policy is one immutable version of a project's bundle.
type Policy struct {
	ID        string       `json:"policy_id"`
	ProjectID string       `json:"project_id"`
	Version   int          `json:"version"`
	Bundle    PolicyBundle `json:"bundle"`
	CreatedBy *string      `json:"created_by,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Escalation statuses.
const (
	EscalationPending   = "pending"
	EscalationResponded = "responded"
	EscalationExpired   = "expired"
)

// Escalation is a workspace's request for human intervention.
type Escalation struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"project_id"`
	WorkspaceID  string     `json:"workspace_id"`
	Alias        string     `json:"alias"`
	Subject      string     `json:"subject"`
	Situation    string     `json:"situation"`
	Options      []string   `json:"options,omitempty"`
	Status       string     `json:"status"`
	Response     *string    `json:"response,omitempty"`
	ResponseNote *string    `json:"response_note,omitempty"`
	RespondedBy  *string    `json:"responded_by,omitempty"`
	RespondedAt  *time.Time `json:"responded_at,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// MailMessage is a durable, read-receipted message between workspaces.
type MailMessage struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	FromID      string     `json:"from_workspace_id"`
	FromAlias   string     `json:"from_alias"`
	ToID        string     `json:"to_workspace_id"`
	Subject     string     `json:"subject"`
	Body        string     `json:"body"`
	Priority    string     `json:"priority"`
	ThreadID    *string    `json:"thread_id,omitempty"`
	Fingerprint *string    `json:"fingerprint,omitempty"`
	Read        bool       `json:"read"`
	ReadBy      *string    `json:"read_by,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ChatSession is a persistent conversation over an unordered participant set.
type ChatSession struct {
	ID           string    `json:"session_id"`
	ProjectID    string    `json:"project_id"`
	Participants []string  `json:"participants"`
	Aliases      []string  `json:"aliases"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ChatMessage is one message in a session, totally ordered by insert time.
type ChatMessage struct {
	ID        string    `json:"message_id"`
	SessionID string    `json:"session_id"`
	SenderID  string    `json:"sender_workspace_id"`
	Alias     string    `json:"alias"`
	Body      string    `json:"body"`
	Leaving   bool      `json:"leaving,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// APIKey metadata. The plaintext secret exists only in the creation response.
type APIKey struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	AgentID   *string   `json:"agent_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEntry is an append-only record of a mutation.
type AuditEntry struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	ActorID   *string         `json:"actor_id,omitempty"`
	Action    string          `json:"action"`
	Subject   string          `json:"subject,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
