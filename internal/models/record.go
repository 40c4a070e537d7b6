package models

import "time"

// Language preference codes carried by the LanguagePreference parameter.
const (
	LangEnglish = "1"
	LangArabic  = "2"
	LangMixed   = "3"
)

// Base carries the identifying fields of a pipeline record.
type Base struct {
	ActorID           string
	CommunicationUUID string
	ScenarioName      string
	CommunicationCode string
	CommunicationName string
}

// Computed holds every field the request handler resolves from the inbound
// parameter list plus the quota verdict. The reporting sink persists these
// columns verbatim.
type Computed struct {
	TestModeEnabled bool
	ControlGroup    bool

	Message            string
	To                 string
	SenderID           string
	LanguagePreference string
	TextEng            string
	TextAr             string
	TextMixed          string
	FlashSMSEnabled    bool

	SegmentName          string
	CamID                string
	MessageType          string
	ContractID           string
	TransactionID        string
	TreatmentName        string
	TreatmentID          string
	OfferName            string
	OfferID              string
	UsecaseTreatmentCode string
	TreatmentCode        string
	CustomerType         string
	EventName            string
	MappingName          string
	Price                string
	OfferCategory        string
	TgCgFlag             string
	Direction            string
	BusinessGroup        string
	BusinessSubGroup     string
	CampaignObjective    string
	CampaignType         string
	OfferType            string
	OfferStartDate       string
	OfferEndDate         string
	AltContactNumber     string
	StartHour            string
	EndHour              string
	MainCampaignName     string

	Timestamp  time.Time
	QuotaCheck OutcomeTag
}

// PipelineRecord is the unit of work flowing through the dispatch pipeline.
// The handler creates it once per accepted or rejected request; the pipeline
// owns it exclusively until it has been handed to the reporting sink.
type PipelineRecord struct {
	OriginalRequest *CommunicationRequest
	Base            Base
	Computed        Computed

	// MessageID is the identifier returned by the protocol session for the
	// last submitted segment. Empty when the record never reached the wire.
	MessageID string
	// SegmentIDs lists the identifier of every submitted segment in order.
	SegmentIDs []string
}

// Rejected reports whether the record failed its quota evaluation.
func (r *PipelineRecord) Rejected() bool {
	return r.Computed.QuotaCheck != TagOK
}
