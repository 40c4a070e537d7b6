package reporting_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/example/sms-dispatch/internal/cache"
	"github.com/example/sms-dispatch/internal/models"
	"github.com/example/sms-dispatch/internal/reporting"
)

var names = cache.Names{
	ContactPolicy:   "CONTACT_POLICY_SMS",
	TrxDaily:        "CUSTOMER_TRX",
	TrxHist:         "CUSTOMER_TRX_HIST",
	Segment:         "CUSTOMER_CP_SEGMENT",
	CustomerDetails: "CUSTOMER_DETAILS",
	ScenarioMeta:    "SCENARIO_META",
}

func newSink(t *testing.T) (*reporting.SQLiteSink, *cache.MemoryClient, string) {
	t.Helper()
	client := cache.NewMemoryClient()
	queries, err := cache.NewQueries(client, names, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error building queries: %v", err)
	}
	dsn := filepath.Join(t.TempDir(), "reporting.db")
	sink, err := reporting.NewSQLiteSink(dsn, "sms_reporting", queries, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error opening sink: %v", err)
	}
	t.Cleanup(func() { sink.Close() })
	return sink, client, dsn
}

func seedEnrichment(t *testing.T, client *cache.MemoryClient) {
	t.Helper()
	ctx := context.Background()
	details := cache.Value{"0509999", "C-42", "POSTPAID", "0", "0501111"}
	if err := client.Put(ctx, names.CustomerDetails, cache.NewKey("a1"), details); err != nil {
		t.Fatalf("seed customer details: %v", err)
	}
	meta := cache.Value{"SPRING", "PREPAIDCVM", "30", "OUTBOUND", "UPSELL", "CAMPAIGN", "5", "false", "S12", "V2"}
	if err := client.Put(ctx, names.ScenarioMeta, cache.NewKey("SPRING_PROMO"), meta); err != nil {
		t.Fatalf("seed scenario meta: %v", err)
	}
}

func sampleRecord(messageID string, tag models.OutcomeTag) *models.PipelineRecord {
	return &models.PipelineRecord{
		OriginalRequest: &models.CommunicationRequest{
			ActorID:  "a1",
			Scenario: "SPRING_PROMO",
			Parameters: []models.Parameter{
				{Name: "applyContactPolicy", Value: "TRUE"},
			},
		},
		Base: models.Base{
			ActorID:           "a1",
			ScenarioName:      "SPRING_PROMO",
			CommunicationUUID: "uuid-1",
		},
		Computed: models.Computed{
			QuotaCheck:         tag,
			LanguagePreference: models.LangEnglish,
			TextEng:            "hello",
			SenderID:           "BRAND",
			SegmentName:        "GOLD",
			MessageType:        "PROMO",
		},
		MessageID: messageID,
	}
}

func queryRow(t *testing.T, dsn, query string, args ...any) *sql.Row {
	t.Helper()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open store for inspection: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db.QueryRow(query, args...)
}

func TestBatchWriteAndDeliveryUpdate(t *testing.T) {
	sink, client, _ := newSink(t)
	seedEnrichment(t, client)
	ctx := context.Background()

	if err := sink.BatchWrite(ctx, []*models.PipelineRecord{sampleRecord("1001", models.TagOK)}, models.StatusSuccess); err != nil {
		t.Fatalf("unexpected batch write error: %v", err)
	}

	affected, err := sink.UpdateDeliveryStatus(ctx, []models.DeliveryReport{
		{MessageID: 1001, FinalStatus: "DELIVRD", DeliveredAt: time.Now()},
		{MessageID: 9999, FinalStatus: "DELIVRD", DeliveredAt: time.Now()},
	})
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if len(affected) != 2 || affected[0] != 1 || affected[1] != 0 {
		t.Fatalf("unexpected affected counts: %v", affected)
	}
}

func TestBatchWriteQuotaExceededMapsToRejected(t *testing.T) {
	sink, _, dsn := newSink(t)
	ctx := context.Background()

	rec := sampleRecord("", models.TagDailyLimitExceeded)
	if err := sink.BatchWrite(ctx, []*models.PipelineRecord{rec}, models.StatusQuotaExceeded); err != nil {
		t.Fatalf("unexpected batch write error: %v", err)
	}

	var status, reason, detail string
	row := queryRow(t, dsn, "SELECT status, reason, reason_detail FROM sms_reporting WHERE actor_id = ?", "a1")
	if err := row.Scan(&status, &reason, &detail); err != nil {
		t.Fatalf("unexpected scan error: %v", err)
	}
	if status != models.StatusRejected {
		t.Fatalf("expected status REJECTED, got %q", status)
	}
	if reason != models.ReasonContactPolicy || detail != string(models.TagDailyLimitExceeded) {
		t.Fatalf("unexpected reason columns: %q / %q", reason, detail)
	}
}

func TestBatchWriteSkipCPDetail(t *testing.T) {
	sink, _, dsn := newSink(t)
	ctx := context.Background()

	rec := sampleRecord("1001", models.TagOK)
	rec.OriginalRequest.Parameters = []models.Parameter{
		{Name: "applyContactPolicy", Value: "FALSE"},
	}
	if err := sink.BatchWrite(ctx, []*models.PipelineRecord{rec}, models.StatusSuccess); err != nil {
		t.Fatalf("unexpected batch write error: %v", err)
	}

	var reason sql.NullString
	var detail string
	row := queryRow(t, dsn, "SELECT reason, reason_detail FROM sms_reporting WHERE actor_id = ?", "a1")
	if err := row.Scan(&reason, &detail); err != nil {
		t.Fatalf("unexpected scan error: %v", err)
	}
	if reason.Valid {
		t.Fatalf("expected NULL reason for a success row, got %q", reason.String)
	}
	if detail != models.ReasonDetailSkipCP {
		t.Fatalf("expected SKIP_CP detail, got %q", detail)
	}
}

func TestBatchWriteControlGroupReason(t *testing.T) {
	sink, _, dsn := newSink(t)
	ctx := context.Background()

	rec := sampleRecord("", models.TagOK)
	rec.Computed.ControlGroup = true
	if err := sink.BatchWrite(ctx, []*models.PipelineRecord{rec}, models.StatusSuccess); err != nil {
		t.Fatalf("unexpected batch write error: %v", err)
	}

	var status, reason string
	var detail sql.NullString
	row := queryRow(t, dsn, "SELECT status, reason, reason_detail FROM sms_reporting WHERE actor_id = ?", "a1")
	if err := row.Scan(&status, &reason, &detail); err != nil {
		t.Fatalf("unexpected scan error: %v", err)
	}
	if status != models.StatusSuccess {
		t.Fatalf("expected status SUCCESS, got %q", status)
	}
	if reason != models.ReasonControlGroup {
		t.Fatalf("expected reason CONTROL_GROUP, got %q", reason)
	}
	if detail.Valid {
		t.Fatalf("expected NULL reason detail, got %q", detail.String)
	}
}

func TestBatchWriteEnrichmentColumns(t *testing.T) {
	sink, client, dsn := newSink(t)
	seedEnrichment(t, client)
	ctx := context.Background()

	if err := sink.BatchWrite(ctx, []*models.PipelineRecord{sampleRecord("1001", models.TagOK)}, models.StatusSuccess); err != nil {
		t.Fatalf("unexpected batch write error: %v", err)
	}

	var camID, eventName, contractID, alt string
	var tgCg int
	row := queryRow(t, dsn,
		"SELECT cam_id, event_name, contract_id, alt_contact_number, tg_cg_flag FROM sms_reporting WHERE actor_id = ?", "a1")
	if err := row.Scan(&camID, &eventName, &contractID, &alt, &tgCg); err != nil {
		t.Fatalf("unexpected scan error: %v", err)
	}
	if camID != "SPRING_V2" {
		t.Fatalf("expected cam_id SPRING_V2, got %q", camID)
	}
	if eventName != "SPRING_EVT" {
		t.Fatalf("expected event name SPRING_EVT, got %q", eventName)
	}
	if contractID != "C-42" {
		t.Fatalf("expected contract id C-42, got %q", contractID)
	}
	// PREPAIDCVM campaigns report the alternate msisdn.
	if alt != "0509999" {
		t.Fatalf("expected alt contact 0509999, got %q", alt)
	}
	// UCG flag 0 inverts to tg/cg flag 1.
	if tgCg != 1 {
		t.Fatalf("expected tg_cg_flag 1, got %d", tgCg)
	}
}

func TestBatchWriteMissingEnrichmentStillWrites(t *testing.T) {
	sink, _, dsn := newSink(t)
	ctx := context.Background()

	if err := sink.BatchWrite(ctx, []*models.PipelineRecord{sampleRecord("1001", models.TagOK)}, models.StatusSuccess); err != nil {
		t.Fatalf("unexpected batch write error: %v", err)
	}

	var count int
	row := queryRow(t, dsn, "SELECT COUNT(*) FROM sms_reporting")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("unexpected scan error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one row despite missing enrichment, got %d", count)
	}
}
