package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/sms-dispatch/internal/models"
)

// CustomerDetails is the per-actor detail tuple used to enrich reporting rows.
type CustomerDetails struct {
	AltMsisdn          string
	ContractID         string
	CustomerType       string
	UCGFlag            string
	ContractBaseMsisdn string
}

// ScenarioMetaParams is the per-scenario campaign metadata tuple.
type ScenarioMetaParams struct {
	MainCampaignName  string
	BusinessGroup     string
	ExitAfterDay      string
	Direction         string
	CampaignObjective string
	CampaignType      string
	OfferLimit        string
	TestMode          string
	Sprint            string
	Version           string
}

// Queries wraps the raw cache client with the typed lookups the quota engine
// and reporting sink need.
type Queries struct {
	client Client
	names  Names
	logger zerolog.Logger
}

// NewQueries constructs a Queries facade over the supplied client.
func NewQueries(client Client, names Names, logger zerolog.Logger) (*Queries, error) {
	if client == nil {
		return nil, errors.New("cache: client is required")
	}
	if names.ContactPolicy == "" || names.TrxDaily == "" || names.TrxHist == "" {
		return nil, errors.New("cache: contact policy and transaction cache names are required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Queries{
		client: client,
		names:  names,
		logger: logger.With().Str("component", "cache_queries").Logger(),
	}, nil
}

// SegmentName resolves the contact-policy segment an actor belongs to.
// Returns "" with a nil error when no mapping exists.
func (q *Queries) SegmentName(ctx context.Context, actorID string) (string, error) {
	value, err := q.client.Get(ctx, q.names.Segment, NewKey(actorID))
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cache: read segment for actor %s: %w", actorID, err)
	}
	return value.First(), nil
}

// PolicyValues returns the raw rule tuple stored under a contact-policy key,
// or nil when no rule is defined there.
func (q *Queries) PolicyValues(ctx context.Context, key Key) (Value, error) {
	value, err := q.client.Get(ctx, q.names.ContactPolicy, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: read policy %s: %w", key, err)
	}
	return value, nil
}

// DailyTransactions decodes the actor's daily usage JSON. An absent slot
// yields an empty list; malformed JSON is an error.
func (q *Queries) DailyTransactions(ctx context.Context, actorID string) ([]models.TransactionRecord, error) {
	return q.transactions(ctx, q.names.TrxDaily, actorID)
}

// HistTransactions decodes the actor's historical usage JSON.
func (q *Queries) HistTransactions(ctx context.Context, actorID string) ([]models.TransactionRecord, error) {
	return q.transactions(ctx, q.names.TrxHist, actorID)
}

func (q *Queries) transactions(ctx context.Context, cacheName, actorID string) ([]models.TransactionRecord, error) {
	value, err := q.client.Get(ctx, cacheName, NewKey(actorID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: read transactions %s for actor %s: %w", cacheName, actorID, err)
	}
	raw := value.First()
	if raw == "" {
		return nil, nil
	}
	var records []models.TransactionRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("cache: decode transactions %s for actor %s: %w", cacheName, actorID, err)
	}
	return records, nil
}

// SumSentCount totals SENT_COUNT over entries matching the tuple.
func SumSentCount(records []models.TransactionRecord, channel, messageType string) int {
	total := 0
	for _, rec := range records {
		if rec.Matches(channel, messageType) {
			total += rec.SentCount
		}
	}
	return total
}

// SumWeekly totals WEEKLY_SUM over entries matching the tuple.
func SumWeekly(records []models.TransactionRecord, channel, messageType string) int {
	total := 0
	for _, rec := range records {
		if rec.Matches(channel, messageType) {
			total += rec.WeeklySum
		}
	}
	return total
}

// SumMonthly totals MONTHLY_SUM over entries matching the tuple.
func SumMonthly(records []models.TransactionRecord, channel, messageType string) int {
	total := 0
	for _, rec := range records {
		if rec.Matches(channel, messageType) {
			total += rec.MonthlySum
		}
	}
	return total
}

// UpdateDailyCount performs the read-modify-write that sets the actor's daily
// SENT_COUNT for the exact (channel, messageType) tuple. The matching entry is
// updated in place, or a new entry appended when none exists. There is no
// compare-and-swap on the underlying store; concurrent senders may race.
func (q *Queries) UpdateDailyCount(ctx context.Context, actorID, channel, messageType string, newCount int) error {
	key := NewKey(actorID)
	records, err := q.DailyTransactions(ctx, actorID)
	if err != nil {
		return err
	}

	updated := false
	for i := range records {
		if records[i].Matches(channel, messageType) {
			records[i].SentCount = newCount
			updated = true
			break
		}
	}
	if !updated {
		records = append(records, models.TransactionRecord{
			Channel:     channel,
			MessageType: messageType,
			SentCount:   newCount,
		})
	}

	encoded, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("cache: encode daily transactions for actor %s: %w", actorID, err)
	}
	if err := q.client.Put(ctx, q.names.TrxDaily, key, Value{string(encoded)}); err != nil {
		return fmt.Errorf("cache: write daily transactions for actor %s: %w", actorID, err)
	}
	return nil
}

// CustomerDetails resolves the reporting detail tuple for an actor. Returns
// nil when absent or incomplete; reporting enrichment is best effort.
func (q *Queries) CustomerDetails(ctx context.Context, actorID string) *CustomerDetails {
	if actorID == "" {
		return nil
	}
	value, err := q.client.Get(ctx, q.names.CustomerDetails, NewKey(actorID))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			q.logger.Error().Err(err).Str("actor_id", actorID).Msg("customer details lookup failed")
		}
		return nil
	}
	if len(value) < 5 {
		q.logger.Warn().Str("actor_id", actorID).Msg("incomplete customer details")
		return nil
	}
	return &CustomerDetails{
		AltMsisdn:          value[0],
		ContractID:         value[1],
		CustomerType:       value[2],
		UCGFlag:            value[3],
		ContractBaseMsisdn: value[4],
	}
}

// ScenarioMetaParams resolves the campaign metadata tuple for a scenario.
// Returns nil when absent or incomplete.
func (q *Queries) ScenarioMetaParams(ctx context.Context, scenarioName string) *ScenarioMetaParams {
	if scenarioName == "" {
		return nil
	}
	value, err := q.client.Get(ctx, q.names.ScenarioMeta, NewKey(scenarioName))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			q.logger.Error().Err(err).Str("scenario", scenarioName).Msg("scenario meta lookup failed")
		}
		return nil
	}
	if len(value) < 10 {
		q.logger.Warn().Str("scenario", scenarioName).Msg("incomplete scenario meta params")
		return nil
	}
	return &ScenarioMetaParams{
		MainCampaignName:  value[0],
		BusinessGroup:     value[1],
		ExitAfterDay:      value[2],
		Direction:         value[3],
		CampaignObjective: value[4],
		CampaignType:      value[5],
		OfferLimit:        value[6],
		TestMode:          value[7],
		Sprint:            value[8],
		Version:           value[9],
	}
}
