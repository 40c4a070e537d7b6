package reporting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/example/sms-dispatch/internal/cache"
	"github.com/example/sms-dispatch/internal/models"
)

const dateLayout = "02-01-2006"

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS %s (
	actor_id               TEXT,
	contract_id            TEXT,
	language_preference    TEXT,
	message                TEXT,
	sender_id              TEXT,
	test_mode              TEXT,
	flash_sms              TEXT,
	cam_id                 TEXT,
	scenario_name          TEXT,
	segment_name           TEXT,
	transaction_id         TEXT,
	treatment_name         TEXT,
	offer_name             TEXT,
	usecase_treatment_code TEXT,
	communication_uuid     TEXT,
	treatment_code         TEXT,
	communication_name     TEXT,
	message_type           TEXT,
	customer_type          TEXT,
	message_id             INTEGER,
	event_name             TEXT,
	mapping_name           TEXT,
	price                  REAL,
	offer_category         TEXT,
	tg_cg_flag             INTEGER,
	direction              TEXT,
	business_group         TEXT,
	business_sub_group     TEXT,
	campaign_objective     TEXT,
	campaign_type          TEXT,
	offer_type             TEXT,
	offer_start_date       TEXT,
	offer_end_date         TEXT,
	alt_contact_number     TEXT,
	main_campaign_name     TEXT,
	control_group          TEXT,
	status                 TEXT,
	reason                 TEXT,
	reason_detail          TEXT,
	delivery_status        TEXT,
	delivery_status_date   TIMESTAMP,
	created_at             TIMESTAMP
)`

// SQLiteSink persists pipeline outcomes to a SQLite reporting table and
// patches delivery statuses into previously written rows. Rows are enriched
// at write time with customer details and scenario metadata from the cache.
type SQLiteSink struct {
	db      *sql.DB
	queries *cache.Queries
	table   string
	logger  zerolog.Logger
	now     func() time.Time
}

// NewSQLiteSink opens (or creates) the reporting store at dsn.
func NewSQLiteSink(dsn, table string, queries *cache.Queries, logger zerolog.Logger) (*SQLiteSink, error) {
	if dsn == "" {
		return nil, errors.New("reporting: dsn is required")
	}
	if table == "" {
		return nil, errors.New("reporting: table name is required")
	}
	if queries == nil {
		return nil, errors.New("reporting: cache queries dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("reporting: open store: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf(schemaTemplate, table)); err != nil {
		db.Close()
		return nil, fmt.Errorf("reporting: create table: %w", err)
	}

	return &SQLiteSink{
		db:      db,
		queries: queries,
		table:   table,
		logger:  logger.With().Str("component", "reporting_sink").Logger(),
		now:     time.Now,
	}, nil
}

// BatchWrite inserts one row per record inside a single transaction.
func (s *SQLiteSink) BatchWrite(ctx context.Context, records []*models.PipelineRecord, status string) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reporting: begin batch write: %w", err)
	}
	defer tx.Rollback()

	insert := fmt.Sprintf(`INSERT INTO %s (
		actor_id, contract_id, language_preference, message, sender_id,
		test_mode, flash_sms, cam_id, scenario_name, segment_name,
		transaction_id, treatment_name, offer_name, usecase_treatment_code,
		communication_uuid, treatment_code, communication_name, message_type,
		customer_type, message_id, event_name, mapping_name, price,
		offer_category, tg_cg_flag, direction, business_group,
		business_sub_group, campaign_objective, campaign_type, offer_type,
		offer_start_date, offer_end_date, alt_contact_number,
		main_campaign_name, control_group, status, reason, reason_detail,
		created_at
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, s.table)

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("reporting: prepare batch write: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, s.rowValues(ctx, rec, status)...); err != nil {
			return fmt.Errorf("reporting: insert row for actor %s: %w", rec.Base.ActorID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reporting: commit batch write: %w", err)
	}
	return nil
}

// UpdateDeliveryStatus patches the delivery status and date into the row
// matching each report's message id, returning per-report affected counts.
func (s *SQLiteSink) UpdateDeliveryStatus(ctx context.Context, reports []models.DeliveryReport) ([]int64, error) {
	if len(reports) == 0 {
		return nil, nil
	}

	update := fmt.Sprintf(
		"UPDATE %s SET delivery_status=?, delivery_status_date=? WHERE message_id=?", s.table)

	stmt, err := s.db.PrepareContext(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("reporting: prepare delivery update: %w", err)
	}
	defer stmt.Close()

	affected := make([]int64, len(reports))
	for i, report := range reports {
		res, err := stmt.ExecContext(ctx, report.FinalStatus, report.DeliveredAt, report.MessageID)
		if err != nil {
			return nil, fmt.Errorf("reporting: update delivery status for message %d: %w", report.MessageID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("reporting: rows affected for message %d: %w", report.MessageID, err)
		}
		affected[i] = n
	}
	return affected, nil
}

// Close releases the underlying store.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// rowValues computes the full column tuple for one record, resolving the
// enrichment lookups best effort; a missing detail tuple leaves its derived
// columns empty rather than failing the write.
func (s *SQLiteSink) rowValues(ctx context.Context, rec *models.PipelineRecord, status string) []any {
	c := &rec.Computed

	details := s.queries.CustomerDetails(ctx, rec.Base.ActorID)
	meta := s.queries.ScenarioMetaParams(ctx, rec.Base.ScenarioName)

	contractID := ""
	customerType := ""
	businessSubGroup := ""
	tgCgFlag := 0
	if details != nil {
		contractID = details.ContractID
		customerType = details.CustomerType
		businessSubGroup = details.CustomerType
		if details.UCGFlag != "1" {
			tgCgFlag = 1
		}
	}

	now := s.now()
	currentDate := now.Format(dateLayout)

	camID := ""
	usecaseTreatmentCode := ""
	eventName := ""
	direction := ""
	businessGroup := ""
	campaignObjective := ""
	campaignType := ""
	mainCampaignName := ""
	altContactNumber := ""
	var offerEndDate any
	if meta != nil {
		camID = meta.MainCampaignName + "_" + meta.Version
		usecaseTreatmentCode = camID + "_" + c.SegmentName + "_1_" + currentDate
		eventName = meta.MainCampaignName + "_EVT"
		direction = meta.Direction
		businessGroup = meta.BusinessGroup
		campaignObjective = meta.CampaignObjective
		campaignType = meta.CampaignType
		mainCampaignName = meta.MainCampaignName
		if details != nil {
			if meta.BusinessGroup == "PREPAIDCVM" {
				altContactNumber = details.AltMsisdn
			} else {
				altContactNumber = details.ContractBaseMsisdn
			}
		}
		if meta.ExitAfterDay != "" {
			if days, err := strconv.Atoi(meta.ExitAfterDay); err == nil {
				offerEndDate = now.AddDate(0, 0, days).Format(dateLayout)
			}
		}
	}

	message := messageText(c)

	testMode := strconv.FormatBool(c.TestModeEnabled)
	if c.ControlGroup {
		testMode = models.ReasonControlGroup
	}

	var messageID int64
	if rec.MessageID != "" {
		if parsed, err := strconv.ParseInt(rec.MessageID, 10, 64); err == nil {
			messageID = parsed
		}
	}

	var price float64
	if c.Price != "" {
		if parsed, err := strconv.ParseFloat(c.Price, 64); err == nil {
			price = parsed
		}
	}

	var controlGroup any
	if c.ControlGroup {
		controlGroup = models.ReasonControlGroup
	}

	rowStatus := status
	if status == models.StatusQuotaExceeded {
		rowStatus = models.StatusRejected
	}
	reason, reasonDetail := reasonColumns(rec, status)

	return []any{
		rec.Base.ActorID, contractID, c.LanguagePreference, message, c.SenderID,
		testMode, strconv.FormatBool(c.FlashSMSEnabled), camID, rec.Base.ScenarioName, c.SegmentName,
		c.TransactionID, c.TreatmentName, c.OfferName, usecaseTreatmentCode,
		rec.Base.CommunicationUUID, c.TreatmentCode, rec.Base.CommunicationName, c.MessageType,
		customerType, messageID, eventName, c.MappingName, price,
		c.OfferCategory, tgCgFlag, direction, businessGroup,
		businessSubGroup, campaignObjective, campaignType, c.OfferType,
		currentDate, offerEndDate, altContactNumber,
		mainCampaignName, controlGroup, rowStatus, reason, reasonDetail,
		now,
	}
}

// reasonColumns derives the reason/reason-detail pair persisted with the row.
// Control group rows carry their reason even though they are persisted as
// successes.
func reasonColumns(rec *models.PipelineRecord, status string) (any, any) {
	if rec.Computed.ControlGroup {
		return models.ReasonControlGroup, nil
	}
	if status == models.StatusSuccess {
		if rec.OriginalRequest != nil &&
			strings.EqualFold(rec.OriginalRequest.Param("applyContactPolicy"), "FALSE") {
			return nil, models.ReasonDetailSkipCP
		}
		return nil, nil
	}

	quotaCheck := rec.Computed.QuotaCheck
	switch {
	case quotaCheck == models.TagProperTime:
		return models.ReasonProperTime, nil
	case quotaCheck != "" && quotaCheck != models.TagOK:
		return models.ReasonContactPolicy, string(quotaCheck)
	default:
		return nil, nil
	}
}

func messageText(c *models.Computed) string {
	switch c.LanguagePreference {
	case models.LangEnglish:
		return c.TextEng
	case models.LangArabic:
		return c.TextAr
	case models.LangMixed:
		return c.TextMixed
	default:
		return ""
	}
}
