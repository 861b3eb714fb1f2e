// ABOUTME: Notification decision engine for newly observed jobs
// ABOUTME: Evaluates geometry template tags and job attributes against an ordered trigger table
package notify

import (
	"fmt"
	"sync"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/harperreed/fieldwatch/models"
)

// TriggerType names a notification trigger condition.
type TriggerType string

const (
	TriggerReferenceField TriggerType = "reference_field"
	TriggerExclusionZone  TriggerType = "exclusion_zone"
	TriggerNogoZone       TriggerType = "nogo_zone"
	TriggerZeroArea       TriggerType = "zero_area"
)

// Geometry feature template-type tags recognized in upstream geometry.
const (
	templateOutlines  = "outlines"
	templateExclusion = "exclusion"
	templateNogo      = "nogo"
)

// Decision is the outcome of evaluating one job.
type Decision struct {
	Notify  bool        `json:"notify"`
	Reason  string      `json:"reason"`
	Trigger TriggerType `json:"trigger,omitempty"`
}

// trigger pairs a TriggerType with its match predicate.
type trigger struct {
	kind  TriggerType
	why   string
	match func(job *models.JobDetail, tags map[string]bool) bool
}

// triggerOrder is the fixed evaluation order. The first enabled trigger that
// matches wins; later triggers are not evaluated, so the reported reason is
// deterministic when tags co-occur.
var triggerOrder = []trigger{
	{
		kind: TriggerReferenceField,
		why:  "outlines template type present",
		match: func(_ *models.JobDetail, tags map[string]bool) bool {
			return tags[templateOutlines]
		},
	},
	{
		kind: TriggerExclusionZone,
		why:  "exclusion template type present",
		match: func(_ *models.JobDetail, tags map[string]bool) bool {
			return tags[templateExclusion]
		},
	},
	{
		kind: TriggerNogoZone,
		why:  "nogo template type present",
		match: func(_ *models.JobDetail, tags map[string]bool) bool {
			return tags[templateNogo]
		},
	},
	{
		kind: TriggerZeroArea,
		why:  "job area is zero",
		match: func(job *models.JobDetail, _ map[string]bool) bool {
			return job.Area == 0
		},
	},
}

// Engine holds the notification configuration and decides whether a job
// warrants a notification.
type Engine struct {
	mu   sync.Mutex
	path string
	cfg  *Config
	log  *zap.Logger
}

// NewEngine loads the config at path, falling back to compiled-in defaults if
// the file is missing or malformed (a malformed file is logged, not fatal).
func NewEngine(path string, log *zap.Logger) *Engine {
	log = log.Named("notify")

	cfg, err := loadConfig(path)
	if err != nil {
		log.Warn("notification config unreadable, using defaults",
			zap.String("path", path),
			zap.Error(err))
		cfg = DefaultConfig()
	}

	return &Engine{path: path, cfg: cfg, log: log}
}

// Enabled reports whether notifications are globally enabled.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Enabled
}

// Config returns a copy of the current configuration.
func (e *Engine) Config() *Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.clone()
}

// ShouldNotify evaluates a job's detail and requested geometry against the
// trigger table.
func (e *Engine) ShouldNotify(job *models.JobDetail, features *geojson.FeatureCollection) Decision {
	e.mu.Lock()
	cfg := e.cfg.clone()
	e.mu.Unlock()

	if !cfg.Enabled {
		return Decision{Notify: false, Reason: "notifications disabled"}
	}

	tags := templateTags(features)
	for _, t := range triggerOrder {
		if !cfg.Rules[t.kind] {
			continue
		}
		if t.match(job, tags) {
			return Decision{Notify: true, Reason: t.why, Trigger: t.kind}
		}
	}

	return Decision{Notify: false, Reason: "no triggers matched"}
}

// Recipients returns the always-notify list union the contractor's dedicated
// recipient, deduplicated, in insertion order.
func (e *Engine) Recipients(contractor string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]bool)
	out := []string{}
	for _, addr := range e.cfg.AlwaysNotify {
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	if addr, ok := e.cfg.ContractorEmails[contractor]; ok && addr != "" && !seen[addr] {
		out = append(out, addr)
	}
	return out
}

// Message returns the custom message text for a trigger, or "" when none is
// configured.
func (e *Engine) Message(kind TriggerType) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg.Messages == nil {
		return ""
	}
	return e.cfg.Messages[kind]
}

// mutate applies fn to the config under lock and persists the result.
// Last-writer-wins; config changes are infrequent operator actions.
func (e *Engine) mutate(fn func(cfg *Config)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.cfg.clone()
	fn(next)
	next.normalize()
	if err := saveConfig(e.path, next); err != nil {
		return err
	}
	e.cfg = next
	return nil
}

// Update replaces the full configuration.
func (e *Engine) Update(cfg *Config) error {
	return e.mutate(func(dst *Config) { *dst = *cfg.clone() })
}

// AddRecipient appends an address to the always-notify list (no-op if already
// present).
func (e *Engine) AddRecipient(addr string) error {
	return e.mutate(func(cfg *Config) {
		for _, existing := range cfg.AlwaysNotify {
			if existing == addr {
				return
			}
		}
		cfg.AlwaysNotify = append(cfg.AlwaysNotify, addr)
	})
}

// RemoveRecipient drops an address from the always-notify list.
func (e *Engine) RemoveRecipient(addr string) error {
	return e.mutate(func(cfg *Config) {
		kept := cfg.AlwaysNotify[:0]
		for _, existing := range cfg.AlwaysNotify {
			if existing != addr {
				kept = append(kept, existing)
			}
		}
		cfg.AlwaysNotify = kept
	})
}

// SetContractorEmail maps a contractor label to a dedicated recipient.
func (e *Engine) SetContractorEmail(contractor, addr string) error {
	return e.mutate(func(cfg *Config) {
		cfg.ContractorEmails[contractor] = addr
	})
}

// RemoveContractorEmail drops a contractor's dedicated recipient.
func (e *Engine) RemoveContractorEmail(contractor string) error {
	return e.mutate(func(cfg *Config) {
		delete(cfg.ContractorEmails, contractor)
	})
}

// SetMessage sets custom message text for a trigger.
func (e *Engine) SetMessage(kind TriggerType, text string) error {
	return e.mutate(func(cfg *Config) {
		if cfg.Messages == nil {
			cfg.Messages = map[TriggerType]string{}
		}
		cfg.Messages[kind] = text
	})
}

// ClearMessage removes a trigger's custom message text.
func (e *Engine) ClearMessage(kind TriggerType) error {
	return e.mutate(func(cfg *Config) {
		delete(cfg.Messages, kind)
	})
}

// ValidTrigger reports whether s names a known trigger type.
func ValidTrigger(s string) bool {
	switch TriggerType(s) {
	case TriggerReferenceField, TriggerExclusionZone, TriggerNogoZone, TriggerZeroArea:
		return true
	}
	return false
}

// templateTags extracts the set of template-type tags present in a feature
// collection.
func templateTags(features *geojson.FeatureCollection) map[string]bool {
	tags := make(map[string]bool)
	if features == nil {
		return tags
	}
	for _, f := range features.Features {
		if f == nil || f.Properties == nil {
			continue
		}
		if tag, ok := f.Properties["templateType"].(string); ok && tag != "" {
			tags[tag] = true
		}
	}
	return tags
}

// ComposeMessage builds the subject and plain-text body for a notification.
// Custom per-trigger message text replaces the default body lead when set.
func ComposeMessage(job *models.JobDetail, dec Decision, custom string) (subject, body string) {
	subject = fmt.Sprintf("fieldwatch: %s: %s", dec.Trigger, job.Name)

	lead := fmt.Sprintf("Job %q (order %s) triggered %s: %s.", job.Name, job.OrderNumber, dec.Trigger, dec.Reason)
	if custom != "" {
		lead = custom
	}

	body = fmt.Sprintf("%s\n\nJob ID: %s\nCustomer: %s\nContractor: %s\nArea: %.2f\nStatus: %s\nDue: %s\n",
		lead, job.ID, job.Customer, job.Contractor, job.Area, job.Status, job.DueDate.Format("2006-01-02"))
	return subject, body
}
