package proposal

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ProposalInput is the caller-supplied brief. It is immutable once submitted;
// empty duration/budget is legal and degrades to conservative defaults.
type ProposalInput struct {
	ProjectTitle       string   `json:"projectTitle"`
	ClientName         string   `json:"clientName"`
	ProjectDescription string   `json:"projectDescription"`
	TechStack          []string `json:"techStack"`
	Duration           string   `json:"duration"`
	Budget             string   `json:"budget"`
	YourName           string   `json:"yourName"`
	YourRole           string   `json:"yourRole"`
	HourlyRate         float64  `json:"hourlyRate"`
}

type EstimateItem struct {
	Item      string  `json:"item"`
	Quantity  float64 `json:"quantity"`
	Unit      string  `json:"unit"`
	UnitPrice float64 `json:"unitPrice"`
	Amount    float64 `json:"amount"`
}

type TimelinePhase struct {
	Phase    string   `json:"phase"`
	Duration string   `json:"duration"`
	Tasks    []string `json:"tasks"`
}

type ProposalOutput struct {
	Summary       string          `json:"summary"`
	Scope         string          `json:"scope"`
	Deliverables  []string        `json:"deliverables"`
	Timeline      []TimelinePhase `json:"timeline"`
	EstimateItems []EstimateItem  `json:"estimateItems"`
	TotalAmount   float64         `json:"totalAmount"`
	Notes         string          `json:"notes"`
}

// gorm JSON column plumbing. MySQL stores these as text; sqlite in tests too.

func (in ProposalInput) Value() (driver.Value, error) { return json.Marshal(in) }

func (in *ProposalInput) Scan(v any) error {
	switch b := v.(type) {
	case []byte:
		return json.Unmarshal(b, in)
	case string:
		return json.Unmarshal([]byte(b), in)
	}
	return errors.New("proposal: unsupported input column type")
}

func (out ProposalOutput) Value() (driver.Value, error) { return json.Marshal(out) }

func (out *ProposalOutput) Scan(v any) error {
	switch b := v.(type) {
	case []byte:
		return json.Unmarshal(b, out)
	case string:
		return json.Unmarshal([]byte(b), out)
	}
	return errors.New("proposal: unsupported output column type")
}

// Proposal is one persisted generation for an authenticated user.
type Proposal struct {
	ID        string         `gorm:"primaryKey;size:26" json:"id"` // ULID
	UserID    uint64         `gorm:"index;not null" json:"-"`
	Input     ProposalInput  `gorm:"type:text;not null" json:"input"`
	Output    ProposalOutput `gorm:"type:text;not null" json:"output"`
	CreatedAt time.Time      `json:"created_at"`
}

func (Proposal) TableName() string { return "proposals" }

// Subscription statuses mirrored from the payment provider.
const (
	StatusActive    = "active"
	StatusPastDue   = "past_due"
	StatusCancelled = "cancelled"
)

// UsageRecord is the per-user entitlement row. proposals_created is a
// lifetime counter and never resets. Entitlement fields are written only by
// the billing synchronizer, never by the generation path.
type UsageRecord struct {
	ID                   uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID               uint64    `gorm:"uniqueIndex;not null" json:"user_id"`
	ProposalsCreated     int       `gorm:"not null;default:0" json:"proposals_created"`
	IsPaid               bool      `gorm:"not null;default:false" json:"is_paid"`
	SubscriptionStatus   string    `gorm:"type:varchar(32)" json:"subscription_status"`
	StripeCustomerID     string    `gorm:"type:varchar(64);index" json:"-"`
	StripeSubscriptionID string    `gorm:"type:varchar(64)" json:"-"`
	CreatedAt            time.Time `json:"-"`
	UpdatedAt            time.Time `json:"-"`
}

func (UsageRecord) TableName() string { return "user_usage" }

// IsActivePro reports whether the user currently has unlimited generation.
// A lapsed subscription (past_due/cancelled) revokes it even while is_paid
// still reads true.
func (u *UsageRecord) IsActivePro() bool {
	return u != nil && u.IsPaid && u.SubscriptionStatus == StatusActive
}

// StripeEvent is one row per payment-provider event ever processed.
// The unique event_id makes the insert the idempotency lock.
type StripeEvent struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	EventID   string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	Type      string    `gorm:"type:varchar(64);not null"`
	CreatedAt time.Time
}

func (StripeEvent) TableName() string { return "stripe_events" }

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is an async generation request consumed by cmd/worker.
type Job struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	UserID uint64        `gorm:"index;not null"`
	Input  ProposalInput `gorm:"type:text;not null"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_user_idempo,unique" json:"idempotency_key"`

	Status JobStatus `gorm:"type:varchar(16);index;not null"`

	// Filled when succeeded
	ResultProposalID *string `gorm:"size:26;index"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Job) TableName() string { return "proposal_jobs" }

// Template is a form preset surfaced by GET /templates.
type Template struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Icon        string        `json:"icon"`
	Color       string        `json:"color"`
	Defaults    ProposalInput `json:"defaults"`
}

// Templates is the fixed preset catalog.
var Templates = []Template{
	{
		ID:          "web",
		Name:        "Web 開発",
		Description: "フロントエンド・フルスタック開発の提案書",
		Icon:        "🌐",
		Color:       "indigo",
		Defaults: ProposalInput{
			YourRole:  "Webエンジニア",
			TechStack: []string{"React", "Next.js", "TypeScript", "PostgreSQL"},
			Duration:  "3ヶ月",
			Budget:    "〜100万",
		},
	},
	{
		ID:          "api",
		Name:        "API / バックエンド",
		Description: "API設計・バックエンド開発の提案書",
		Icon:        "⚙️",
		Color:       "violet",
		Defaults: ProposalInput{
			YourRole:  "バックエンドエンジニア",
			TechStack: []string{"Node.js", "Python", "FastAPI", "PostgreSQL", "Docker"},
			Duration:  "3ヶ月",
			Budget:    "〜100万",
		},
	},
	{
		ID:          "infra",
		Name:        "インフラ / クラウド",
		Description: "AWS・GCP構築・運用の提案書",
		Icon:        "☁️",
		Color:       "sky",
		Defaults: ProposalInput{
			YourRole:  "インフラエンジニア",
			TechStack: []string{"AWS", "Terraform", "Docker", "Kubernetes", "CI/CD"},
			Duration:  "1ヶ月",
			Budget:    "〜50万",
		},
	},
	{
		ID:          "consultant",
		Name:        "技術顧問",
		Description: "技術戦略・アドバイザリーの提案書",
		Icon:        "💡",
		Color:       "amber",
		Defaults: ProposalInput{
			YourRole:  "技術顧問",
			TechStack: []string{"アーキテクチャ設計", "コードレビュー", "チーム支援"},
			Duration:  "それ以上",
			Budget:    "応相談",
		},
	},
}
