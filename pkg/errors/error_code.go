package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

// Code ranges map onto the engine's failure classes. IsConfigurationError,
// IsDataError and IsCollaboratorFailure test membership by range.
const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Configuration errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidPeriod        ErrorCode = 102
	ErrCodeInvalidMultiplier    ErrorCode = 103
	ErrCodeInvalidThreshold     ErrorCode = 104
	ErrCodeMissingParameter     ErrorCode = 105
	ErrCodeInvalidVersion       ErrorCode = 106
	ErrCodeVersionMismatch      ErrorCode = 107
	ErrCodeInvalidModel         ErrorCode = 108
	ErrCodeUnsupportedStrategy  ErrorCode = 109
	ErrCodeInvalidTimespan      ErrorCode = 110
	ErrCodeInvalidOrder         ErrorCode = 111

	// Data errors (200-299)
	ErrCodeNonMonotonicBar  ErrorCode = 200
	ErrCodeDuplicateBar     ErrorCode = 201
	ErrCodeMalformedBar     ErrorCode = 202
	ErrCodeInsufficientData ErrorCode = 203
	ErrCodeSymbolMismatch   ErrorCode = 204

	// Order errors (500-599)
	ErrCodeOrderRejected          ErrorCode = 500
	ErrCodeInvalidOrderTransition ErrorCode = 501
	ErrCodePositionNotFound       ErrorCode = 502
	ErrCodePositionAlreadyOpen    ErrorCode = 503

	// Engine errors (600-699)
	ErrCodeEngineBusy       ErrorCode = 600
	ErrCodeEngineNotRunning ErrorCode = 601

	// Collaborator errors (700-799)
	ErrCodeCollaboratorFailure   ErrorCode = 700
	ErrCodeMarketDataFetchFailed ErrorCode = 701
	ErrCodeMarketDataParseFailed ErrorCode = 702
	ErrCodeMarketDataWriteFailed ErrorCode = 703
	ErrCodeBrokerUnavailable     ErrorCode = 704
	ErrCodeReportWriteFailed     ErrorCode = 705
)

func (c ErrorCode) inRange(lo, hi ErrorCode) bool {
	return c >= lo && c <= hi
}
