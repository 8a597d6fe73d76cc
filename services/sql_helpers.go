package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/moxer-mmh/Tweeza/authz"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

// mapWriteError turns constraint violations into the authz sentinels
func mapWriteError(err error, what string) error {
	switch pqCode(err) {
	case "23505":
		return fmt.Errorf("%w: %s", authz.ErrAlreadyExists, what)
	case "23503", "22P02":
		return fmt.Errorf("%w: referenced record for %s", authz.ErrNotFound, what)
	case "23514":
		return fmt.Errorf("%w: %s", authz.ErrInvalidInput, what)
	}
	return err
}

// parseRoles converts the text[] aggregate of user_roles into typed roles
func parseRoles(names []string) []authz.Role {
	roles := make([]authz.Role, 0, len(names))
	for _, n := range names {
		if r, err := authz.ParseRole(n); err == nil {
			roles = append(roles, r)
		}
	}
	return roles
}

func likePattern(q string) string {
	return "%" + strings.TrimSpace(q) + "%"
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
