package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-donations-backend/internal/domain"
)

// Fingerprint summarizes a listing well enough to detect change: any
// insert, soft delete or status transition moves Count or LastUpdated.
type Fingerprint struct {
	Count       int64
	LastUpdated time.Time // zero for an empty listing
}

// ETag renders a weak validator for the listing. Extra parts (page, page
// size) distinguish different views of the same rows.
func (f Fingerprint) ETag(scope string, parts ...int) string {
	var ts int64
	if !f.LastUpdated.IsZero() {
		ts = f.LastUpdated.UnixNano()
	}
	var b strings.Builder
	fmt.Fprintf(&b, `W/"%s:%d:%d`, scope, f.Count, ts)
	for _, p := range parts {
		fmt.Fprintf(&b, ":%d", p)
	}
	b.WriteByte('"')
	return b.String()
}

// CauseFingerprint covers all live causes.
func CauseFingerprint(ctx context.Context, db *gorm.DB) (Fingerprint, error) {
	return fingerprint(func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Cause{})
	})
}

// DonationFingerprint covers the donations of one cause.
func DonationFingerprint(ctx context.Context, db *gorm.DB, causeID string) (Fingerprint, error) {
	return fingerprint(func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Donation{}).Where("cause_id = ?", causeID)
	})
}

// fingerprint needs a fresh statement per query, hence the scope func.
func fingerprint(scope func() *gorm.DB) (Fingerprint, error) {
	var fp Fingerprint
	if err := scope().Count(&fp.Count).Error; err != nil {
		return Fingerprint{}, err
	}
	if fp.Count == 0 {
		return fp, nil
	}
	// ORDER BY instead of MAX(): SQLite returns MAX(updated_at) as TEXT.
	var latest struct{ UpdatedAt time.Time }
	if err := scope().Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&latest).Error; err != nil {
		return Fingerprint{}, err
	}
	fp.LastUpdated = latest.UpdatedAt
	return fp, nil
}
