package handler

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/sms-dispatch/internal/models"
	"github.com/example/sms-dispatch/internal/util"
)

// controlGroupMarker is the testModeEnabled value that flags a real actor as
// part of an experiment control group.
const controlGroupMarker = "CONTROL_GROUP"

// Enqueuer receives finished pipeline records. Enqueue blocks while the
// dispatch queue is full.
type Enqueuer interface {
	Enqueue(ctx context.Context, rec *models.PipelineRecord) error
}

// Handler converts an inbound request plus its quota verdict into a pipeline
// record, applies test/control-group classification and hands the record to
// the dispatch queue.
type Handler struct {
	pipeline   Enqueuer
	testActors map[string]struct{}
	logger     zerolog.Logger
	now        func() time.Time
}

// NewHandler constructs a Handler. testActors is the comma-separated actor
// list whose records are forced out of test mode so they reach the wire.
func NewHandler(pipeline Enqueuer, testActors string, logger zerolog.Logger) (*Handler, error) {
	if pipeline == nil {
		return nil, errors.New("handler: pipeline dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	actors := make(map[string]struct{})
	for _, a := range util.SplitCSV(testActors) {
		actors[a] = struct{}{}
	}
	return &Handler{
		pipeline:   pipeline,
		testActors: actors,
		logger:     logger.With().Str("component", "request_handler").Logger(),
		now:        time.Now,
	}, nil
}

// Handle builds the pipeline record for the request and enqueues it. Every
// verdict flows through here: rejected records are persisted with their
// outcome tag rather than silently dropped. Failures are logged, not
// propagated; a broken sibling record must not block the caller.
func (h *Handler) Handle(ctx context.Context, req *models.CommunicationRequest, tag models.OutcomeTag) {
	rec := h.buildRecord(req, tag)

	if _, ok := h.testActors[req.ActorID]; ok {
		rec.Computed.TestModeEnabled = false
		h.logger.Info().Str("actor_id", req.ActorID).Msg("test actor detected, test mode disabled")
	}

	if err := h.pipeline.Enqueue(ctx, rec); err != nil {
		h.logger.Error().Err(err).Str("actor_id", req.ActorID).Msg("failed to enqueue pipeline record")
	}
}

func (h *Handler) buildRecord(req *models.CommunicationRequest, tag models.OutcomeTag) *models.PipelineRecord {
	rec := &models.PipelineRecord{
		OriginalRequest: req,
		Base: models.Base{
			ActorID:           req.ActorID,
			CommunicationUUID: req.CommunicationUUID,
			ScenarioName:      req.Scenario,
			CommunicationCode: req.CommunicationCode,
			CommunicationName: req.Scenario,
		},
	}

	c := &rec.Computed
	c.QuotaCheck = tag
	c.Timestamp = h.now()

	for _, p := range req.Parameters {
		switch p.Name {
		case "testModeEnabled":
			if p.Value == controlGroupMarker {
				c.ControlGroup = true
				c.TestModeEnabled = false
			} else {
				c.ControlGroup = false
				c.TestModeEnabled, _ = strconv.ParseBool(p.Value)
			}
		case "To":
			c.To = p.Value
		case "SenderId":
			c.SenderID = p.Value
		case "LanguagePreference":
			c.LanguagePreference = p.Value
		case "Text_Eng":
			c.TextEng = p.Value
		case "Text_Ar":
			c.TextAr = p.Value
		case "Text_Mixed":
			c.TextMixed = p.Value
		case "flashSmsEnabled":
			c.FlashSMSEnabled, _ = strconv.ParseBool(p.Value)
		case "segmentName":
			c.SegmentName = p.Value
		case "camId":
			c.CamID = p.Value
		case "messageType":
			c.MessageType = p.Value
		case "contractId":
			c.ContractID = p.Value
		case "transactionId":
			c.TransactionID = p.Value
		case "treatmentName":
			c.TreatmentName = p.Value
		case "treatmentId":
			c.TreatmentID = p.Value
		case "offerName":
			c.OfferName = p.Value
		case "offerId":
			c.OfferID = p.Value
		case "usercaseTreatmentCode":
			c.UsecaseTreatmentCode = p.Value
		case "treatmentCode":
			c.TreatmentCode = p.Value
		case "customerType":
			c.CustomerType = p.Value
		case "eventName":
			c.EventName = p.Value
		case "mappingName":
			c.MappingName = p.Value
		case "price":
			c.Price = p.Value
		case "offerCategory":
			c.OfferCategory = p.Value
		case "tgCgFlag":
			c.TgCgFlag = p.Value
		case "direction":
			c.Direction = p.Value
		case "businessGroup":
			c.BusinessGroup = p.Value
		case "businessSubGroup":
			c.BusinessSubGroup = p.Value
		case "campaignObjective":
			c.CampaignObjective = p.Value
		case "campaignType":
			c.CampaignType = p.Value
		case "offerType":
			c.OfferType = p.Value
		case "offerStartDate":
			c.OfferStartDate = p.Value
		case "offerEndDate":
			c.OfferEndDate = p.Value
		case "altContactNumber":
			c.AltContactNumber = p.Value
		case "startHour":
			c.StartHour = p.Value
		case "endHour":
			c.EndHour = p.Value
		case "mainCampaignName":
			c.MainCampaignName = p.Value
		}
	}

	return rec
}
