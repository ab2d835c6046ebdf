package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter      ErrorCode = 100
	ErrCodeInvalidConfiguration  ErrorCode = 101
	ErrCodeInvalidDateRange      ErrorCode = 102
	ErrCodeInvalidOrder          ErrorCode = 103
	ErrCodeInvalidInterval       ErrorCode = 104
	ErrCodeInvalidAmountSpec     ErrorCode = 105
	ErrCodeUnsupportedAssetClass ErrorCode = 106
	ErrCodeMissingParameter      ErrorCode = 107
	ErrCodeInvalidVersion        ErrorCode = 108

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound        ErrorCode = 200
	ErrCodeSnapshotMissing     ErrorCode = 201
	ErrCodeQueryFailed         ErrorCode = 202
	ErrCodeHistoryUnavailable  ErrorCode = 203
	ErrCodeSymbolNotRecognized ErrorCode = 204

	// Condition errors (300-399)
	ErrCodeConditionEvaluation ErrorCode = 300
	ErrCodeConditionLookback   ErrorCode = 301

	// Portfolio/Trading errors (500-599)
	ErrCodeOrderFailed      ErrorCode = 500
	ErrCodePositionNotFound ErrorCode = 501
	ErrCodePriceUnavailable ErrorCode = 502

	// Backtest errors (600-699)
	ErrCodeBacktestNotFound     ErrorCode = 600
	ErrCodeBacktestInitFailed   ErrorCode = 601
	ErrCodeBacktestConfigError  ErrorCode = 602
	ErrCodeBacktestNoStrategies ErrorCode = 603
	ErrCodeBacktestNoProvider   ErrorCode = 604

	// Synthetic generator errors (700-799)
	ErrCodeEmptyMarketHistory ErrorCode = 700
	ErrCodeGeneratorFailed    ErrorCode = 701
)
