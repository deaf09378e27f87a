package postgres

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
)

// isUUID は ID が UUID として解釈できるかを返します。解釈できない ID は存在しないものとして扱います。
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullableString(value *string) any {
	if value == nil || *value == "" {
		return nil
	}
	return *value
}

func nullableDate(value *time.Time) any {
	if value == nil {
		return nil
	}
	return toDate(*value)
}

// toDate は DATE 列の値を UTC の 0 時に揃えます。
func toDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func nullableTimestamp(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC()
}

func stringFromNull(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

func dateFromNull(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	date := toDate(value.Time.UTC())
	return &date
}

func timestampFromNull(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}
