package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeRequiredField:      "Required field is missing",
	CodeInvalidInput:       "Invalid input provided",
	CodeInvalidState:       "Invalid state for this operation",
	CodeNotFound:           "Resource not found",
	CodeConfigurationError: "Configuration error",
	CodeServiceTimeout:     "Service request timeout",
	CodeInternalError:      "Internal error",
	CodeUnknownError:       "An unknown error occurred",

	CodeMarketsUnavailable:   "Exchange markets could not be loaded",
	CodeGatewayAPIError:      "Exchange gateway API error",
	CodeGatewayRateLimited:   "Exchange gateway rate limit exceeded",
	CodeOrderbookFetchFailed: "Failed to fetch order book",
	CodeInvalidOrderbook:     "Invalid order book data",
	CodeSymbolNotListed:      "Symbol is not listed on the exchange",

	CodeStreamConnectionError: "Order book stream connection error",
	CodeStreamClosed:          "Order book stream closed",
	CodeStreamFatal:           "Order book stream failed fatally",

	CodeLimitViolation:    "Order violates market limits",
	CodeOrderUnfilled:     "Order did not fill",
	CodeUnwindFailed:      "Emergency unwind failed",
	CodeInsufficientDepth: "Insufficient order book depth",
	CodeInsufficientFunds: "Insufficient free balance",
	CodeZeroPrice:         "Price is zero",
	CodeMissingMarketMeta: "Market limits or precision missing",
	CodePairUnresolvable:  "No tradable market between currencies",
	CodeBlacklistPersist:  "Failed to persist blacklist",
	CodeCommandInvalid:    "Invalid operator command",
	CodeCircuitOpen:       "Circuit breaker is open",
}
