package auth

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidUID is returned when a reset link user reference cannot be decoded.
var ErrInvalidUID = errors.New("invalid user reference")

// EncodeUID encodes a user id for reset links (unpadded base64url of the decimal id).
func EncodeUID(id int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

// DecodeUID reverses EncodeUID. Padded input is accepted.
func DecodeUID(uid string) (int64, error) {
	uid = strings.TrimRight(strings.TrimSpace(uid), "=")
	if uid == "" {
		return 0, ErrInvalidUID
	}
	raw, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return 0, ErrInvalidUID
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || id < 1 {
		return 0, ErrInvalidUID
	}
	return id, nil
}
