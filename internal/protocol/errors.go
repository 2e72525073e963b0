package protocol

// Access denied reason codes.
const (
	ErrWrongPassword    = "E_WRONG_PASSWORD"
	ErrUnexpectedData   = "E_UNEXPECTED_DATA"
	ErrSingleplayer     = "E_SINGLEPLAYER"
	ErrWrongVersion     = "E_WRONG_VERSION"
	ErrWrongCharsInName = "E_WRONG_CHARS_IN_NAME"
	ErrWrongName        = "E_WRONG_NAME"
	ErrTooManyUsers     = "E_TOO_MANY_USERS"
	ErrEmptyPassword    = "E_EMPTY_PASSWORD"
	ErrAlreadyConnected = "E_ALREADY_CONNECTED"
	ErrServerFail       = "E_SERVER_FAIL"
	ErrCustom           = "E_CUSTOM"
	ErrShutdown         = "E_SHUTDOWN"
	ErrCrash            = "E_CRASH"
)

var knownCodes = map[string]struct{}{
	ErrWrongPassword:    {},
	ErrUnexpectedData:   {},
	ErrSingleplayer:     {},
	ErrWrongVersion:     {},
	ErrWrongCharsInName: {},
	ErrWrongName:        {},
	ErrTooManyUsers:     {},
	ErrEmptyPassword:    {},
	ErrAlreadyConnected: {},
	ErrServerFail:       {},
	ErrCustom:           {},
	ErrShutdown:         {},
	ErrCrash:            {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
