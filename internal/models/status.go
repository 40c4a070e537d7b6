package models

// OutcomeTag is the quota verdict attached to a pipeline record. It is set
// exactly once when the record is created and determines how the dispatch
// pipeline routes the record; it is never changed afterwards.
type OutcomeTag string

const (
	TagOK                    OutcomeTag = "OK"
	TagProperTime            OutcomeTag = "PROPER_TIME"
	TagMissingParams         OutcomeTag = "MISSING_PARAMS"
	TagContactPolicyNotFound OutcomeTag = "CONTACT_POLICY_NOT_FOUND"
	TagCacheReadError        OutcomeTag = "CACHE_READ_ERROR"
	TagDailyLimitExceeded    OutcomeTag = "DAILY_LIMIT_EXCEEDED"
	TagWeeklyLimitExceeded   OutcomeTag = "WEEKLY_LIMIT_EXCEEDED"
	TagMonthlyLimitExceeded  OutcomeTag = "MONTHLY_LIMIT_EXCEEDED"
	TagUnexpectedError       OutcomeTag = "UNEXPECTED_ERROR"
)

// Persistence statuses handed to the reporting sink.
const (
	StatusSuccess       = "SUCCESS"
	StatusFail          = "FAIL"
	StatusQuotaExceeded = "QUOTA_EXCEEDED"
	// StatusRejected is what QUOTA_EXCEEDED maps to in the persisted row.
	StatusRejected = "REJECTED"
)

// Reason column values written alongside failed or shadowed rows.
const (
	ReasonContactPolicy = "CONTACT_POLICY"
	ReasonControlGroup  = "CONTROL_GROUP"
	ReasonProperTime    = "PROPER_TIME"
	ReasonDetailSkipCP  = "SKIP_CP"
)
