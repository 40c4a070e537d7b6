package quota

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/example/sms-dispatch/internal/cache"
	"github.com/example/sms-dispatch/internal/models"
	"github.com/example/sms-dispatch/internal/util"
)

// Parameter names the engine reads from the request.
const (
	paramTestMode        = "testModeEnabled"
	paramMessageType     = "messageType"
	paramApplyPolicy     = "applyContactPolicy"
	paramProperStartHour = "properStartHour"
	paramProperEndHour   = "properEndHour"
)

// Outcome is the result of a single quota evaluation.
type Outcome struct {
	Allow  bool
	Reason models.OutcomeTag
	// Message is a human readable explanation for events and logs.
	Message string
	// Limits is populated when a policy rule was resolved and checked.
	Limits *models.ContactPolicyLimits
	// PolicyApplied is true only when the full contact-policy check ran and
	// passed; it gates the caller's usage-counter increment. A bypass
	// (applyContactPolicy=FALSE) allows without applying the policy.
	PolicyApplied bool
	// MessageType echoes the evaluated message type for counter updates.
	MessageType string
}

// Config tunes the engine.
type Config struct {
	// RatePerSecond caps evaluations across callers; zero disables limiting.
	RatePerSecond float64
	RateBurst     int
}

// Engine resolves contact-policy rules from the cache and decides, per
// request, whether the send is within quota.
type Engine struct {
	queries *cache.Queries
	limiter *rate.Limiter
	logger  zerolog.Logger
	now     func() time.Time
}

// NewEngine constructs a quota engine.
func NewEngine(cfg Config, queries *cache.Queries, logger zerolog.Logger) (*Engine, error) {
	if queries == nil {
		return nil, errors.New("quota: cache queries dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Engine{
		queries: queries,
		limiter: limiter,
		logger:  logger.With().Str("component", "quota_engine").Logger(),
		now:     time.Now,
	}, nil
}

// Evaluate decides whether the request may be sent. The verdict order is
// fixed: proper-time gate, policy bypass, field validation, segment lookup,
// rule discovery, rule selection, usage computation, then daily, weekly and
// monthly threshold checks. Cache failures deny; they are never treated as
// unlimited quota.
func (e *Engine) Evaluate(ctx context.Context, req *models.CommunicationRequest) Outcome {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return Outcome{Reason: models.TagUnexpectedError, Message: err.Error()}
		}
	}

	actorID := req.ActorID
	fields := util.ExtractParams(req.Parameters,
		paramTestMode, paramMessageType, paramApplyPolicy, paramProperStartHour, paramProperEndHour)

	// Proper-time gate. Parse failures fail closed.
	within, err := util.WithinWindow(fields[paramProperStartHour], fields[paramProperEndHour], e.now())
	if err != nil {
		e.logger.Error().Err(err).Str("actor_id", actorID).Msg("proper time window could not be parsed")
		return Outcome{Reason: models.TagProperTime, Message: "Current time is out of proper time range."}
	}
	if !within {
		e.logger.Debug().Str("scenario", req.Scenario).Msg("current time is out of proper time range, skipping limit checks")
		return Outcome{Reason: models.TagProperTime, Message: "Current time is out of proper time range."}
	}

	if applyPolicy, ok := fields[paramApplyPolicy]; ok && strings.EqualFold(applyPolicy, "FALSE") {
		e.logger.Debug().Str("scenario", req.Scenario).Msg("quota check not required, skipping limit checks")
		return Outcome{Allow: true, Reason: models.TagOK, Message: "Quota check not required."}
	}

	messageType, ok := fields[paramMessageType]
	if !ok {
		return Outcome{Reason: models.TagMissingParams, Message: "Missing required parameter: messageType"}
	}
	channel := models.ChannelSMS

	// Transaction history is read exactly once per evaluation.
	dailyTransactions, err := e.queries.DailyTransactions(ctx, actorID)
	if err != nil {
		e.logger.Error().Err(err).Str("actor_id", actorID).Msg("fatal error reading transaction caches, aborting checks")
		return Outcome{Reason: models.TagCacheReadError, Message: "Could not read transaction history.", MessageType: messageType}
	}
	histTransactions, err := e.queries.HistTransactions(ctx, actorID)
	if err != nil {
		e.logger.Error().Err(err).Str("actor_id", actorID).Msg("fatal error reading transaction caches, aborting checks")
		return Outcome{Reason: models.TagCacheReadError, Message: "Could not read transaction history.", MessageType: messageType}
	}

	segmentName, err := e.queries.SegmentName(ctx, actorID)
	if err != nil {
		e.logger.Error().Err(err).Str("actor_id", actorID).Msg("segment lookup failed")
		return Outcome{Reason: models.TagCacheReadError, Message: "Could not read actor segment.", MessageType: messageType}
	}
	if segmentName == "" {
		e.logger.Error().Str("actor_id", actorID).Msg("no contact policy segment found for actor")
		return Outcome{Reason: models.TagContactPolicyNotFound, Message: "Could not find actor - contact policy segment relation.", MessageType: messageType}
	}

	rule, outcome := e.resolveRule(ctx, actorID, segmentName, channel, messageType)
	if rule == nil {
		outcome.MessageType = messageType
		return outcome
	}

	limits := &models.ContactPolicyLimits{
		DailyLimit:   rule.DailyLimit,
		WeeklyLimit:  rule.WeeklyLimit,
		MonthlyLimit: rule.MonthlyLimit,
		DailyCount:   cache.SumSentCount(dailyTransactions, channel, messageType),
		WeeklySum:    cache.SumWeekly(histTransactions, channel, messageType),
		MonthlySum:   cache.SumMonthly(histTransactions, channel, messageType),
	}

	if limits.DailyLimit >= 0 && limits.DailyCount >= limits.DailyLimit {
		e.logLimitExceeded(actorID, rule, limits, "DAILY")
		return Outcome{Reason: models.TagDailyLimitExceeded, Message: rule.SourceKey + " Daily limit exceeded", Limits: limits, MessageType: messageType}
	}
	if limits.WeeklyLimit >= 0 && limits.DailyCount+limits.WeeklySum >= limits.WeeklyLimit {
		e.logLimitExceeded(actorID, rule, limits, "WEEKLY")
		return Outcome{Reason: models.TagWeeklyLimitExceeded, Message: rule.SourceKey + " Weekly limit exceeded", Limits: limits, MessageType: messageType}
	}
	if limits.MonthlyLimit >= 0 && limits.DailyCount+limits.MonthlySum >= limits.MonthlyLimit {
		e.logLimitExceeded(actorID, rule, limits, "MONTHLY")
		return Outcome{Reason: models.TagMonthlyLimitExceeded, Message: rule.SourceKey + " Monthly limit exceeded", Limits: limits, MessageType: messageType}
	}

	e.logger.Debug().
		Str("actor_id", actorID).
		Str("policy", rule.SourceKey).
		Str("limits", formatLimits(limits, "")).
		Msg("limit check passed")

	return Outcome{
		Allow:         true,
		Reason:        models.TagOK,
		Message:       "All limits checked and valid.",
		Limits:        limits,
		PolicyApplied: true,
		MessageType:   messageType,
	}
}

// IncrementUsage bumps the actor's daily SENT_COUNT for the exact
// (channel, messageType) tuple by one, via read-modify-write on the daily
// transaction slot. Called only after a policy pass.
func (e *Engine) IncrementUsage(ctx context.Context, actorID, messageType string) error {
	channel := models.ChannelSMS
	records, err := e.queries.DailyTransactions(ctx, actorID)
	if err != nil {
		return fmt.Errorf("quota: read usage before increment: %w", err)
	}
	current := cache.SumSentCount(records, channel, messageType)
	return e.queries.UpdateDailyCount(ctx, actorID, channel, messageType, current+1)
}

// resolveRule probes the candidate policy keys most specific first, parses
// every rule found and selects the one with the numerically lowest priority.
// Ties keep the first discovered rule.
func (e *Engine) resolveRule(ctx context.Context, actorID, segmentName, channel, messageType string) (*models.PolicyRule, Outcome) {
	candidateKeys := []cache.Key{
		cache.NewKey(segmentName, channel, messageType),
		cache.NewKey(segmentName, "ALL", messageType),
	}

	var found []models.PolicyRule
	for _, key := range candidateKeys {
		e.logger.Debug().Str("policy_key", key.String()).Msg("checking policy key")
		values, err := e.queries.PolicyValues(ctx, key)
		if err != nil {
			e.logger.Error().Err(err).Str("actor_id", actorID).Str("policy_key", key.String()).Msg("policy lookup failed")
			return nil, Outcome{Reason: models.TagCacheReadError, Message: "Could not read contact policy."}
		}
		if len(values) == 0 {
			continue
		}
		rule, err := parseRule(values, key.String())
		if err != nil {
			e.logger.Error().Err(err).Str("policy_key", key.String()).Msg("malformed policy rule")
			return nil, Outcome{Reason: models.TagCacheReadError, Message: "Malformed contact policy rule."}
		}
		found = append(found, rule)
	}

	if len(found) == 0 {
		e.logger.Error().Str("actor_id", actorID).Msg("no contact policy found for actor")
		return nil, Outcome{Reason: models.TagContactPolicyNotFound, Message: "No contact policy defined for actor."}
	}

	active := found[0]
	for _, rule := range found[1:] {
		if rule.Priority < active.Priority {
			active = rule
		}
	}
	e.logger.Debug().
		Str("actor_id", actorID).
		Str("policy", active.SourceKey).
		Int("priority", active.Priority).
		Msg("active policy selected")
	return &active, Outcome{}
}

// parseRule decodes a raw policy tuple laid out as
// [priority, dailyLimit, weeklyLimit, monthlyLimit, ...].
func parseRule(values cache.Value, sourceKey string) (models.PolicyRule, error) {
	if len(values) < 4 {
		return models.PolicyRule{}, fmt.Errorf("quota: rule %s has %d values, want at least 4", sourceKey, len(values))
	}
	fields := make([]int, 4)
	for i := 0; i < 4; i++ {
		n, err := strconv.Atoi(values[i])
		if err != nil {
			return models.PolicyRule{}, fmt.Errorf("quota: rule %s field %d: %w", sourceKey, i, err)
		}
		fields[i] = n
	}
	return models.PolicyRule{
		Priority:     fields[0],
		DailyLimit:   fields[1],
		WeeklyLimit:  fields[2],
		MonthlyLimit: fields[3],
		SourceKey:    sourceKey,
	}, nil
}

func (e *Engine) logLimitExceeded(actorID string, rule *models.PolicyRule, limits *models.ContactPolicyLimits, tier string) {
	e.logger.Debug().
		Str("actor_id", actorID).
		Str("policy", rule.SourceKey).
		Str("limits", formatLimits(limits, tier)).
		Msg("limit exceeded")
}

// formatLimits renders usage/limit pairs, marking the breached tier with
// angle brackets the way the upstream reporting tooling expects.
func formatLimits(l *models.ContactPolicyLimits, failed string) string {
	pair := func(tier string, used, limit int) string {
		if tier == failed {
			return fmt.Sprintf("<%d/%d>", used, limit)
		}
		return fmt.Sprintf("%d/%d", used, limit)
	}
	return fmt.Sprintf("[daily: %s, weekly: %s, monthly: %s]",
		pair("DAILY", l.DailyCount, l.DailyLimit),
		pair("WEEKLY", l.DailyCount+l.WeeklySum, l.WeeklyLimit),
		pair("MONTHLY", l.DailyCount+l.MonthlySum, l.MonthlyLimit))
}
