package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeRequiredField      Code = "REQUIRED_FIELD"
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeInvalidState       Code = "INVALID_STATE"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConfigurationError Code = "CONFIGURATION_ERROR"
	CodeServiceTimeout     Code = "SERVICE_TIMEOUT"
	CodeInternalError      Code = "INTERNAL_ERROR"
	CodeUnknownError       Code = "UNKNOWN_ERROR"
)

// Exchange gateway error codes
const (
	CodeMarketsUnavailable   Code = "MARKETS_UNAVAILABLE"
	CodeGatewayAPIError      Code = "GATEWAY_API_ERROR"
	CodeGatewayRateLimited   Code = "GATEWAY_RATE_LIMITED"
	CodeOrderbookFetchFailed Code = "ORDERBOOK_FETCH_FAILED"
	CodeInvalidOrderbook     Code = "INVALID_ORDERBOOK"
	CodeSymbolNotListed      Code = "SYMBOL_NOT_LISTED"
)

// Stream error codes
const (
	CodeStreamConnectionError Code = "STREAM_CONNECTION_ERROR"
	CodeStreamClosed          Code = "STREAM_CLOSED"
	CodeStreamFatal           Code = "STREAM_FATAL"
)

// Execution error codes
const (
	CodeLimitViolation     Code = "LIMIT_VIOLATION"
	CodeOrderUnfilled      Code = "ORDER_UNFILLED"
	CodeUnwindFailed       Code = "UNWIND_FAILED"
	CodeInsufficientDepth  Code = "INSUFFICIENT_DEPTH"
	CodeInsufficientFunds  Code = "INSUFFICIENT_FUNDS"
	CodeZeroPrice          Code = "ZERO_PRICE"
	CodeMissingMarketMeta  Code = "MISSING_MARKET_METADATA"
	CodePairUnresolvable   Code = "PAIR_UNRESOLVABLE"
	CodeBlacklistPersist   Code = "BLACKLIST_PERSIST_FAILED"
	CodeCommandInvalid     Code = "COMMAND_INVALID"
	CodeCircuitOpen        Code = "CIRCUIT_OPEN"
)
