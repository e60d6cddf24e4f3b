package domain

// Language is the conversation language reported for a chat round-trip.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageArabic  Language = "ar"
)

// ChatMode is the chat surface the round-trip was issued from.
type ChatMode string

const (
	ChatModeFloating ChatMode = "floating"
	ChatModeFull     ChatMode = "full"
)

// CrisisSeverity is the upstream classifier's severity for a detected crisis.
type CrisisSeverity string

const (
	CrisisLow      CrisisSeverity = "low"
	CrisisMedium   CrisisSeverity = "medium"
	CrisisHigh     CrisisSeverity = "high"
	CrisisCritical CrisisSeverity = "critical"
)

// ChatErrorType classifies the upstream failure recorded in a ChatMetric.
type ChatErrorType string

const (
	ChatErrorNetwork ChatErrorType = "network"
	ChatErrorAPI     ChatErrorType = "api"
	ChatErrorParsing ChatErrorType = "parsing"
	ChatErrorTimeout ChatErrorType = "timeout"
	ChatErrorUnknown ChatErrorType = "unknown"
)

// Platform is the runtime the collector is running on.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
	PlatformServer  Platform = "server"
)

// ChatMetricInput is the caller-supplied part of a chat round-trip record.
// The collector turns it into a ChatMetric by adding timestamp, platform
// and version.
//
// Durations are milliseconds. Optional numeric fields use pointers so that
// "absent" and "zero" stay distinguishable in aggregation.
type ChatMetricInput struct {
	MessageLength     int      `json:"messageLength"`
	Language          Language `json:"language"`
	ChatMode          ChatMode `json:"chatMode"`
	ContextSize       int      `json:"contextSize"`
	HasRecentMessages bool     `json:"hasRecentMessages"`
	HasUserInfo       bool     `json:"hasUserInfo"`

	TotalDuration           int64  `json:"totalDuration"`
	ContextBuildDuration    *int64 `json:"contextBuildDuration,omitempty"`
	APICallDuration         *int64 `json:"apiCallDuration,omitempty"`
	ResponseProcessDuration *int64 `json:"responseProcessDuration,omitempty"`

	CrisisDetected   bool           `json:"crisisDetected"`
	CrisisSeverity   CrisisSeverity `json:"crisisSeverity,omitempty"`
	CrisisIndicators []string       `json:"crisisIndicators,omitempty"`

	AIResponseQuality *int `json:"aiResponseQuality,omitempty"`
	UserSatisfaction  *int `json:"userSatisfaction,omitempty"`

	Error     string        `json:"error,omitempty"`
	ErrorType ChatErrorType `json:"errorType,omitempty"`

	UserID         string `json:"userId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// ChatMetric is a complete, collector-stamped round-trip record.
type ChatMetric struct {
	ChatMetricInput

	Timestamp string   `json:"timestamp"`
	Platform  Platform `json:"platform"`
	Version   string   `json:"version"`
}

// HasError reports whether the round-trip recorded an upstream failure.
func (m ChatMetric) HasError() bool {
	return m.Error != ""
}

// LanguageDistribution counts round-trips per supported language.
type LanguageDistribution struct {
	En int `json:"en"`
	Ar int `json:"ar"`
}

// ChatModeUsage counts round-trips per chat surface.
type ChatModeUsage struct {
	Floating int `json:"floating"`
	Full     int `json:"full"`
}

// AggregatedMetrics is a derived snapshot over the collector buffer.
// Durations are milliseconds, rates are fractions in [0, 1].
type AggregatedMetrics struct {
	TotalMessages        int                  `json:"totalMessages"`
	AverageResponseTime  float64              `json:"averageResponseTime"`
	ErrorRate            float64              `json:"errorRate"`
	CrisisDetectionRate  float64              `json:"crisisDetectionRate"`
	LanguageDistribution LanguageDistribution `json:"languageDistribution"`
	ChatModeUsage        ChatModeUsage        `json:"chatModeUsage"`
	PerformanceP95       int64                `json:"performanceP95"`
	QualityScore         float64              `json:"qualityScore"`
}

// MetricsExport is the serialized snapshot handed to diagnostic sinks.
type MetricsExport struct {
	ExportTime string            `json:"exportTime"`
	Aggregated AggregatedMetrics `json:"aggregated"`
	Detailed   []ChatMetric      `json:"detailed"`
}
