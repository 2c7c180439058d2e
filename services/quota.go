package services

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/sharebox/models"
)

// Admission is the outcome of a quota check.
type Admission struct {
	Allowed     bool
	CurrentUsed int64
	Available   int64
}

// Decide applies the ceiling policy to a known usage figure.
// Unlimited and admin roles, and a negative ceiling, always admit.
func Decide(role models.Role, ceiling, used, incoming int64) Admission {
	if role.BypassesQuota() || ceiling < 0 {
		return Admission{Allowed: true, CurrentUsed: used, Available: -1}
	}
	available := ceiling - used
	if available < 0 {
		available = 0
	}
	return Admission{
		Allowed:     used+incoming <= ceiling,
		CurrentUsed: used,
		Available:   available,
	}
}

// QuotaAccountant sums a user's stored bytes and gates uploads.
type QuotaAccountant struct {
	db     *gorm.DB
	strict bool
}

// NewQuotaAccountant returns an accountant. With strict set, CanAdmit locks
// the user row so concurrent admissions for one user are serialized.
func NewQuotaAccountant(db *gorm.DB, strict bool) *QuotaAccountant {
	return &QuotaAccountant{db: db, strict: strict}
}

// WithDB returns a copy bound to tx.
func (q *QuotaAccountant) WithDB(tx *gorm.DB) *QuotaAccountant {
	return &QuotaAccountant{db: tx, strict: q.strict}
}

// CurrentUsage is the sum of sizes of every file the user owns, including
// uploads still in flight.
func (q *QuotaAccountant) CurrentUsage(ctx context.Context, userID uint) (int64, error) {
	var used int64
	err := q.db.WithContext(ctx).Model(&models.File{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(size_bytes), 0)").
		Scan(&used).Error
	if err != nil {
		return 0, persistence("sum usage", err)
	}
	return used, nil
}

// CanAdmit checks whether incoming bytes fit under the ceiling.
func (q *QuotaAccountant) CanAdmit(ctx context.Context, userID uint, role models.Role, ceiling, incoming int64) (Admission, error) {
	if role.BypassesQuota() || ceiling < 0 {
		return Decide(role, ceiling, 0, incoming), nil
	}
	if q.strict {
		var u models.User
		err := q.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").Where("id = ?", userID).Take(&u).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Admission{}, ErrNotFound
		}
		if err != nil {
			return Admission{}, persistence("lock user", err)
		}
	}
	used, err := q.CurrentUsage(ctx, userID)
	if err != nil {
		return Admission{}, err
	}
	return Decide(role, ceiling, used, incoming), nil
}
