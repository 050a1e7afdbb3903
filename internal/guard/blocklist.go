package guard

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vndeals/backend/internal/metrics"
	"github.com/vndeals/backend/pkg/httpx"
)

const maxReasonsPerEntry = 20

// BlockRecord is an active denial of service for one IP. Reasons collects
// the violations seen before and during the block, capped like the ledger.
type BlockRecord struct {
	IP         string    `json:"ip"`
	Until      time.Time `json:"blockedUntil"`
	Reason     string    `json:"reason"`
	Reasons    []string  `json:"reasons,omitempty"`
	Violations int       `json:"violations"`
	BlockedAt  time.Time `json:"blockedAt"`
}

// BlockStatus is the answer to "is this IP blocked right now".
type BlockStatus struct {
	Blocked    bool
	Until      time.Time
	Reason     string
	Violations int
}

type violationLedger struct {
	count   int
	firstAt time.Time
	lastAt  time.Time
	reasons []string
}

// Config holds the escalation parameters for the block engine.
type Config struct {
	ViolationThreshold int
	ViolationWindow    time.Duration
	BlockDuration      time.Duration
	Whitelist          []string
}

// Engine tracks blocked IPs, the whitelist, and the violation ledger that
// escalates repeat offenders into blocks. All state lives under one mutex so
// the check-then-update paths stay atomic.
type Engine struct {
	mu         sync.Mutex
	blocked    map[string]*BlockRecord
	whitelist  map[string]struct{}
	violations map[string]*violationLedger
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	e := &Engine{
		blocked:    make(map[string]*BlockRecord),
		whitelist:  make(map[string]struct{}),
		violations: make(map[string]*violationLedger),
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
	for _, ip := range cfg.Whitelist {
		e.whitelist[httpx.CanonicalIP(ip)] = struct{}{}
	}
	return e
}

// IsWhitelisted reports whether the IP bypasses all block and limit logic.
func (e *Engine) IsWhitelisted(ip string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.whitelist[httpx.CanonicalIP(ip)]
	return ok
}

// Whitelist adds an IP to the whitelist and lifts any standing block.
func (e *Engine) Whitelist(ip string) {
	ip = httpx.CanonicalIP(ip)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.whitelist[ip] = struct{}{}
	delete(e.blocked, ip)
	delete(e.violations, ip)
}

// Unwhitelist removes an IP from the whitelist.
func (e *Engine) Unwhitelist(ip string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.whitelist, httpx.CanonicalIP(ip))
}

// WhitelistEntries returns the whitelist sorted for stable admin listings.
func (e *Engine) WhitelistEntries() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.whitelist))
	for ip := range e.whitelist {
		out = append(out, ip)
	}
	sort.Strings(out)
	return out
}

// IsBlocked reports the active block for an IP, lazily evicting expired
// records. Whitelist wins over any standing block.
func (e *Engine) IsBlocked(ip string) BlockStatus {
	ip = httpx.CanonicalIP(ip)
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.whitelist[ip]; ok {
		return BlockStatus{}
	}

	rec, ok := e.blocked[ip]
	if !ok {
		return BlockStatus{}
	}
	if !e.now().Before(rec.Until) {
		delete(e.blocked, ip)
		return BlockStatus{}
	}
	return BlockStatus{Blocked: true, Until: rec.Until, Reason: rec.Reason, Violations: rec.Violations}
}

// RecordViolation adds an abuse event for an IP. Whitelisted IPs are ignored.
// An already-blocked IP only collects the reason; otherwise the ledger is
// updated and, once the count reaches the threshold inside the window, a
// block materializes and the ledger entry is folded into it.
func (e *Engine) RecordViolation(ip, reason string) BlockStatus {
	ip = httpx.CanonicalIP(ip)
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.whitelist[ip]; ok {
		return BlockStatus{}
	}
	metrics.Violations.WithLabelValues(violationClass(reason)).Inc()

	now := e.now()

	if rec, ok := e.blocked[ip]; ok {
		if now.Before(rec.Until) {
			if len(rec.Reasons) < maxReasonsPerEntry {
				rec.Reasons = append(rec.Reasons, reason)
			}
			return BlockStatus{Blocked: true, Until: rec.Until, Reason: rec.Reason, Violations: rec.Violations}
		}
		delete(e.blocked, ip)
	}

	led, ok := e.violations[ip]
	if !ok || now.Sub(led.lastAt) > e.cfg.ViolationWindow {
		led = &violationLedger{firstAt: now}
		e.violations[ip] = led
	}
	led.count++
	led.lastAt = now
	if len(led.reasons) < maxReasonsPerEntry {
		led.reasons = append(led.reasons, reason)
	}

	if led.count < e.cfg.ViolationThreshold {
		return BlockStatus{}
	}

	rec := &BlockRecord{
		IP:         ip,
		Until:      now.Add(e.cfg.BlockDuration),
		Reason:     blockReason(reason),
		Reasons:    led.reasons,
		Violations: led.count,
		BlockedAt:  now,
	}
	e.blocked[ip] = rec
	delete(e.violations, ip)
	metrics.Blocks.WithLabelValues("auto").Inc()
	e.logger.Warn("ip auto-blocked",
		slog.String("ip", ip),
		slog.Int("violations", rec.Violations),
		slog.Time("blocked_until", rec.Until),
	)
	return BlockStatus{Blocked: true, Until: rec.Until, Reason: rec.Reason, Violations: rec.Violations}
}

// Block creates an admin-initiated block. Whitelisted IPs are refused at
// read time, so the record is stored regardless.
func (e *Engine) Block(ip string, duration time.Duration, reason string) BlockRecord {
	ip = httpx.CanonicalIP(ip)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	violations := 0
	if led, ok := e.violations[ip]; ok {
		violations = led.count
		delete(e.violations, ip)
	}
	rec := &BlockRecord{
		IP:         ip,
		Until:      now.Add(duration),
		Reason:     reason,
		Violations: violations,
		BlockedAt:  now,
	}
	e.blocked[ip] = rec
	metrics.Blocks.WithLabelValues("admin").Inc()
	e.logger.Info("ip blocked by admin", slog.String("ip", ip), slog.Time("blocked_until", rec.Until))
	return *rec
}

// Unblock removes a block and resets the violation ledger for the IP.
func (e *Engine) Unblock(ip string) bool {
	ip = httpx.CanonicalIP(ip)
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.blocked[ip]
	delete(e.blocked, ip)
	delete(e.violations, ip)
	return ok
}

// BlockedEntries returns active blocks sorted by IP, evicting expired ones.
func (e *Engine) BlockedEntries() []BlockRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	out := make([]BlockRecord, 0, len(e.blocked))
	for ip, rec := range e.blocked {
		if !now.Before(rec.Until) {
			delete(e.blocked, ip)
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out
}

// Sweep evicts expired blocks and stale ledger entries.
func (e *Engine) Sweep() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for ip, rec := range e.blocked {
		if !now.Before(rec.Until) {
			delete(e.blocked, ip)
		}
	}
	for ip, led := range e.violations {
		if now.Sub(led.lastAt) > e.cfg.ViolationWindow {
			delete(e.violations, ip)
		}
	}
}

// SetClock overrides the time source. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

func violationClass(reason string) string {
	switch {
	case strings.HasPrefix(reason, "Rate limit exceeded"):
		return "rate_limit"
	case strings.HasPrefix(reason, "Origin"), strings.HasPrefix(reason, "Referer"):
		return "origin"
	case strings.HasPrefix(reason, "Invalid credentials"):
		return "credentials"
	default:
		return "other"
	}
}

func blockReason(lastViolation string) string {
	if strings.HasPrefix(lastViolation, "Rate limit exceeded") {
		return "Rate limit violations exceeded"
	}
	return "Violation threshold exceeded"
}
