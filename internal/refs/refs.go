// Package refs generates the human-readable, date-scoped reference
// numbers assigned to records at first save, e.g. DM-20250101-0007 or
// PEC-20250101-0003. Suffixes are monotonic per prefix+day, not globally.
package refs

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Next computes the next reference for prefix on day, by finding the
// lexicographically maximal existing reference under the same date scope
// and incrementing its numeric suffix. Falls back to 1 when no reference
// exists or the suffix is unparseable.
//
// Must run inside the same transaction as the record insert; the unique
// constraint on the reference column is the backstop against concurrent
// creations computing the same suffix (the caller retries once on a
// duplicate-key error).
func Next(tx *gorm.DB, model any, prefix string, day time.Time) (string, error) {
	scope := fmt.Sprintf("%s-%s-", prefix, day.Format("20060102"))

	var last []string
	err := tx.Model(model).
		Where("reference LIKE ?", scope+"%").
		Order("reference DESC").
		Limit(1).
		Pluck("reference", &last).Error
	if err != nil {
		return "", err
	}

	n := 1
	if len(last) > 0 {
		if suffix, ok := parseSuffix(last[0]); ok {
			n = suffix + 1
		}
	}
	return fmt.Sprintf("%s%04d", scope, n), nil
}

// parseSuffix extracts the numeric suffix after the last dash.
func parseSuffix(ref string) (int, bool) {
	i := strings.LastIndex(ref, "-")
	if i < 0 || i == len(ref)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(ref[i+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}
