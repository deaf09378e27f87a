package employee

import "strings"

// ParseStatus は文字列を Status に変換します。
func ParseStatus(raw string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !status.IsValid() {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// IsValid は既知のステータスかどうかを返します。
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusOnboarding, StatusOffboarding, StatusTerminated:
		return true
	default:
		return false
	}
}
