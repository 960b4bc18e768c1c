package protocol

// StatusCode is the signed 16-bit status carried in every frame header.
type StatusCode int16

const (
	StatusOK                 StatusCode = 200
	StatusBadRequest         StatusCode = 400
	StatusUnauthorized       StatusCode = 401
	StatusForbidden          StatusCode = 403
	StatusNotFound           StatusCode = 404
	StatusTooManyRequests    StatusCode = 429
	StatusInternalError      StatusCode = 500
	StatusServiceUnavailable StatusCode = 503

	// Application codes.
	StatusUserNotExist       StatusCode = 1001
	StatusUserAlreadyExist   StatusCode = 1002
	StatusRoomNotExist       StatusCode = 1003
	StatusRoomAlreadyExist   StatusCode = 1004
	StatusMessageNotExist    StatusCode = 1005
	StatusAlreadyLoggedIn    StatusCode = 1006
	StatusInvalidCredentials StatusCode = 1007
)

// OK reports whether the status denotes success.
func (s StatusCode) OK() bool {
	return s == StatusOK
}
