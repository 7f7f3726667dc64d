/*
Package errs provides the application error type and error code constants.

These codes identify specific business or system errors both inside the server
and in responses to clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON could not be parsed.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates the request body contained data after valid JSON.
	ErrExtraContentInBody = 1004

	// ErrRequestEntityTooLarge indicates the request body exceeded the server limit.
	ErrRequestEntityTooLarge = 1005

	// ErrRateLimitExceeded indicates the request rate exceeded the configured limit.
	ErrRateLimitExceeded = 1006
)

// 2xxx: Messaging Business Logic Errors
const (
	// ErrRecipientNotFound indicates the message recipient does not resolve to a known user.
	ErrRecipientNotFound = 2101

	// ErrMessageEmpty indicates a send with neither text nor image content.
	ErrMessageEmpty = 2102

	// ErrMessageContentTooLong indicates the text content exceeded the maximum length.
	ErrMessageContentTooLong = 2103

	// ErrImageTooLarge indicates the image payload exceeded the size limit.
	ErrImageTooLarge = 2104

	// ErrImageTypeInvalid indicates the image payload has a disallowed media type.
	ErrImageTypeInvalid = 2105

	// ErrImagePayloadInvalid indicates the image payload is not a decodable data URL.
	ErrImagePayloadInvalid = 2106
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrUnauthorized indicates a request without a valid identity.
	ErrUnauthorized = 3001

	// ErrAlreadyLoggedIn indicates an auth operation performed with an active session.
	ErrAlreadyLoggedIn = 3002

	// ErrInvalidEmail indicates a registration with a malformed email address.
	ErrInvalidEmail = 3003

	// ErrInvalidPassword indicates a password outside the accepted length bounds.
	ErrInvalidPassword = 3004

	// ErrInvalidName indicates a display name outside the accepted length bounds.
	ErrInvalidName = 3005

	// ErrUserAlreadyExists indicates the registration email is taken.
	ErrUserAlreadyExists = 3006

	// ErrInvalidCredentials indicates a failed email/password verification.
	ErrInvalidCredentials = 3007

	// ErrUserNotFound indicates the requested user account does not exist.
	ErrUserNotFound = 3008
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified internal server error.
	ErrUnknown = 5000

	// ErrPersistenceFailure indicates the message store rejected a write.
	ErrPersistenceFailure = 5001

	// ErrImageStorageFailed indicates the image object store rejected a write or read.
	ErrImageStorageFailed = 5002
)
