package routewise

import (
	"github.com/LavishGent/routewise/internal/config"
	"github.com/LavishGent/routewise/internal/llm"
	"github.com/LavishGent/routewise/internal/metrics"
	"github.com/LavishGent/routewise/internal/router"
	"github.com/LavishGent/routewise/internal/types"
)

type (
	// Registry maps operations to vendor implementations.
	Registry = router.Registry
	// Implementation is one call target of a vendor.
	Implementation = router.Implementation
	// Call carries the arguments of one routed operation.
	Call = router.Call

	Logger          = types.Logger
	MetricsRecorder = types.MetricsRecorder
	Serializer      = types.Serializer
	Clock           = types.Clock
	AuditSink       = types.AuditSink
	AuditRecord     = types.AuditRecord
	Cost            = types.Cost

	// ErrorClass is how an adapter classifies a backend failure.
	ErrorClass = types.ErrorClass

	// Duration is the config duration type; it decodes "15m" or seconds.
	Duration = config.Duration
)

const (
	ClassTransient   = types.ClassTransient
	ClassRateLimited = types.ClassRateLimited
	ClassBadRequest  = types.ClassBadRequest
	ClassFatal       = types.ClassFatal
)

// LLM types.
type (
	Message       = llm.Message
	ToolCall      = llm.ToolCall
	Tool          = llm.Tool
	Usage         = llm.Usage
	Response      = llm.Response
	Candidate     = llm.Candidate
	Client        = llm.Client
	ClientSpec    = llm.ClientSpec
	ModelRouter   = llm.ModelRouter
	ClientFactory = llm.ClientFactory

	// ModelRouters holds the deep and quick model routers.
	ModelRouters = llm.InitResult
)

const (
	RoleDeepThink  = llm.RoleDeepThink
	RoleQuickThink = llm.RoleQuickThink

	RoleSystem    = llm.RoleSystem
	RoleUser      = llm.RoleUser
	RoleAssistant = llm.RoleAssistant
	RoleTool      = llm.RoleTool
)

// Health and metrics types.
type (
	HealthStatus    = types.HealthStatus
	RouterHealth    = types.RouterHealth
	BackendHealth   = types.BackendHealth
	CacheHealth     = types.CacheHealth
	MetricsSnapshot = types.MetricsSnapshot
)

const (
	HealthStatusHealthy   = types.HealthStatusHealthy
	HealthStatusDegraded  = types.HealthStatusDegraded
	HealthStatusUnhealthy = types.HealthStatusUnhealthy
)

// NewRegistry creates an empty vendor registry.
func NewRegistry() *Registry {
	return router.NewRegistry()
}

// NewTracker creates the in-process metrics recorder used by default.
func NewTracker() *metrics.Tracker {
	return metrics.NewTracker()
}
