package models

// Identity is the already-authenticated caller, verified by the upstream
// gateway. The server trusts this pair and never checks credentials itself.
type Identity struct {
	UserID   int
	DeviceID string
}
