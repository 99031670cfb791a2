package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrUpstreamAuth      = errors.New("upstream auth")
	ErrPolicyBlocked     = errors.New("policy blocked")
	ErrQueueFull         = errors.New("queue full")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrInternal          = errors.New("internal error")
)

// ContentType enumerates the kinds of content a crawler can return.
type ContentType string

const (
	ContentPost         ContentType = "post"
	ContentComment      ContentType = "comment"
	ContentReply        ContentType = "reply"
	ContentThread       ContentType = "thread"
	ContentQuestion     ContentType = "question"
	ContentAnswer       ContentType = "answer"
	ContentTweet        ContentType = "tweet"
	ContentRetweet      ContentType = "retweet"
	ContentSearchResult ContentType = "search_result"
)

// CrawledPost is a single piece of content discovered on an external
// platform, normalized to a common shape. Once persisted it is immutable.
type CrawledPost struct {
	ExternalID        string
	ExternalURL       string
	Content           string
	ContentType       ContentType
	AuthorHandle      string
	AuthorDisplayName string
	PlatformMetadata  map[string]any
	ExternalCreatedAt *time.Time
	CrawledAt         time.Time
	Platform          string
	KeywordsMatched   []string
	EngagementMetrics map[string]int
	ParentID          string
}

// CrawlResult is the outcome of one crawl call. Errors are partial:
// posts may be non-empty even when errors is non-empty.
type CrawlResult struct {
	Platform    string
	Posts       []CrawledPost
	TotalFound  int
	CrawlTime   time.Duration
	Errors      []string
	RateLimited bool
	NextCursor  string
}

// RiskLevel is the closed risk classification; blocked routes to crisis
// handling and never reaches response generation.
type RiskLevel string

const (
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
	RiskBlocked RiskLevel = "blocked"
)

// Signal is the stage-1 pipeline output.
type Signal struct {
	ProblemCategory    string
	EmotionalIntensity float64
	Keywords           []string
	Confidence         float64
	RawAnalysis        map[string]any
}

// Risk is the stage-2 pipeline output.
// Invariant: Level == RiskBlocked implies Score == 1.0.
type Risk struct {
	Level             RiskLevel
	Score             float64
	Factors           []string
	ContextFlags      []string
	RecommendedAction string
}

// ResponseType identifies which generated variant was selected.
type ResponseType string

const (
	ResponseValueFirst ResponseType = "value_first"
	ResponseSoftCTA    ResponseType = "soft_cta"
	ResponseContextual ResponseType = "contextual"
)

// Responses is the stage-3 pipeline output: three parallel variants plus
// the one selected by the risk rule (high→value_first, medium→soft_cta,
// low→contextual).
type Responses struct {
	ValueFirst   string
	SoftCTA      string
	Contextual   string
	Selected     string
	SelectedType ResponseType
	RawAnalysis  map[string]any
}

// CTAType maps bijectively to CTA level {0:none, 1:soft, 2:medium, 3:direct}.
type CTAType string

const (
	CTANone   CTAType = "none"
	CTASoft   CTAType = "soft"
	CTAMedium CTAType = "medium"
	CTADirect CTAType = "direct"
)

// CTA is the stage-4 pipeline output.
type CTA struct {
	Level    int
	Type     CTAType
	Analysis CTAAnalysis
}

// CTAAnalysis explains a CTA classification.
type CTAAnalysis struct {
	Reasoning          string
	PromotionalPhrases []string
	ProductMentions    bool
	LinkPresent        bool
	SignupLanguage     bool
	ValueRatio         float64
}

// CTATypeForLevel returns the type paired with a CTA level.
func CTATypeForLevel(level int) CTAType {
	switch level {
	case 1:
		return CTASoft
	case 2:
		return CTAMedium
	case 3:
		return CTADirect
	default:
		return CTANone
	}
}

// CTS is the stage-5 pipeline output: the commitment-to-send decision.
type CTS struct {
	Score             float64
	CanAutoPost       bool
	AutoPostReason    string
	RequiresReview    bool
	RecommendedAction string
	Breakdown         CTSBreakdown
	DecisionFactors   []string
}

// CTSBreakdown carries the weighted components, rounded to 4 decimals.
type CTSBreakdown struct {
	SignalComponent float64
	RiskComponent   float64
	CTAComponent    float64
}

// TenantContext describes the product an organization promotes; it is fed
// into response generation prompts.
type TenantContext struct {
	AppName        string
	ValueProp      string
	TargetAudience string
	KeyBenefits    []string
	WebsiteURL     string
}

// ResponseStatus tracks a generated response through review and posting.
type ResponseStatus string

const (
	ResponsePending  ResponseStatus = "pending"
	ResponseApproved ResponseStatus = "approved"
	ResponsePosting  ResponseStatus = "posting"
	ResponsePosted   ResponseStatus = "posted"
	ResponseFailed   ResponseStatus = "failed"
	ResponseRejected ResponseStatus = "rejected"
)

// Persisted row shapes. IDs are UUID strings assigned by the processor.

// Post is a persisted crawled post.
type Post struct {
	ID                string
	OrganizationID    string
	Platform          string
	ExternalID        string
	ExternalURL       string
	Content           string
	AuthorHandle      string
	AuthorDisplayName string
	CrawledAt         time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Metadata          map[string]any
}

// SignalRow is a persisted stage-1 output linked to a post.
type SignalRow struct {
	ID                 string
	PostID             string
	ProblemCategory    string
	EmotionalIntensity float64
	Keywords           []string
	Confidence         float64
	CreatedAt          time.Time
}

// RiskRow is a persisted stage-2 output linked to a post.
type RiskRow struct {
	ID           string
	PostID       string
	RiskLevel    RiskLevel
	RiskScore    float64
	RiskFactors  []string
	ContextFlags []string
	CreatedAt    time.Time
}

// ResponseRow is a persisted stage-3 output with all three variants.
type ResponseRow struct {
	ID                string
	PostID            string
	OrganizationID    string
	ResponseType      ResponseType
	Content           string
	ValueFirstVariant string
	SoftCTAVariant    string
	ContextualVariant string
	Status            ResponseStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EngagementRow is the review-queue row created for each processed post.
type EngagementRow struct {
	ID              string
	OrganizationID  string
	PostID          string
	ResponseID      string
	Status          string
	Priority        int
	CTSScore        float64
	RequiresReview  bool
	DecisionFactors []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PostResult is the outcome of one platform post attempt.
type PostResult struct {
	Success     bool
	ExternalID  string
	ExternalURL string
	PostedAt    *time.Time
	Platform    string
	Method      string
	Error       string
	ErrorCode   string
	Retryable   bool
	Metadata    map[string]any
}

// Poster error codes.
const (
	PostErrRateLimit          = "RATELIMIT"
	PostErrDeletedComment     = "DELETED_COMMENT"
	PostErrThreadLocked       = "THREAD_LOCKED"
	PostErrDuplicateTweet     = "DUPLICATE_TWEET"
	PostErrAuthFailed         = "AUTH_FAILED"
	PostErrMissingCredentials = "MISSING_CREDENTIALS"
	PostErrBlockedSubreddit   = "BLOCKED_SUBREDDIT"
	PostErrInvalidURL         = "INVALID_URL"
	PostErrWorker             = "WORKER_ERROR"
	PostErrUnknown            = "UNKNOWN_ERROR"
)

// PlatformLimits caps posting activity on a single platform.
type PlatformLimits struct {
	PostsPerHour        int
	PostsPerDay         int
	MinGapSeconds       int
	SubredditGapSeconds int
	Enabled             bool
}

// OrgLimits is the per-organization auto-posting policy.
// Invariant: AutoPostEnabled == false refuses regardless of other checks.
type OrgLimits struct {
	OrganizationID        string
	MaxDailyAutoPosts     int
	MaxHourlyAutoPosts    int
	MinCTSScore           float64
	MaxCTALevel           int
	AllowedRiskLevels     []RiskLevel
	PlatformLimits        map[string]PlatformLimits
	AutoPostEnabled       bool
	BlacklistedSubreddits []string
}

// Repositories (ports)

type PostRepository interface {
	Create(ctx Context, p Post) error
	GetByExternalURL(ctx Context, url string) (Post, error)
	Get(ctx Context, id string) (Post, error)
}

type SignalRepository interface {
	Create(ctx Context, s SignalRow) error
	GetByPostID(ctx Context, postID string) (SignalRow, error)
}

type RiskRepository interface {
	Create(ctx Context, r RiskRow) error
	GetByPostID(ctx Context, postID string) (RiskRow, error)
}

type ResponseRepository interface {
	Create(ctx Context, r ResponseRow) error
	Get(ctx Context, id string) (ResponseRow, error)
	UpdateStatus(ctx Context, id string, status ResponseStatus) error
	ListByStatus(ctx Context, status ResponseStatus, limit int) ([]ResponseRow, error)
}

type EngagementRepository interface {
	Create(ctx Context, e EngagementRow) error
	Get(ctx Context, id string) (EngagementRow, error)
	UpdateStatus(ctx Context, id string, status string) error
	// ListPending returns pending rows ordered by priority (descending),
	// then age (oldest first).
	ListPending(ctx Context, limit int) ([]EngagementRow, error)
}

type OrgLimitsRepository interface {
	Get(ctx Context, organizationID string) (OrgLimits, error)
	Upsert(ctx Context, limits OrgLimits) error
}

// AIClient (port)

type AIClient interface {
	// ChatJSON sends a system+user prompt pair and returns the raw JSON
	// object emitted by the model.
	ChatJSON(ctx Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
	// Embed returns embedding vectors for texts.
	Embed(ctx Context, texts []string) ([][]float32, error)
}

// Context is an alias to avoid importing context everywhere in ports.
type Context = context.Context
