package pricing

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/errs"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/monitoring"
)

type DBLayer interface {
	GetByCode(code string) (*models.Coupon, error)
	IncrementUsage(code string) (bool, error)
	DecrementUsage(code string) error
	Create(coupon models.Coupon) error
	Update(coupon models.Coupon) error
	List() ([]models.Coupon, error)
	Deactivate(id string) error
}

// Quote is the outcome of applying a coupon to a booking total.
type Quote struct {
	Code           string  `json:"code"`
	TotalAmount    float64 `json:"total_amount"`
	DiscountAmount float64 `json:"discount_amount"`
	FinalAmount    float64 `json:"final_amount"`
}

type Engine struct {
	DB     DBLayer
	Logger *logger.Logger
	now    func() time.Time
}

func NewEngine(db DBLayer, log *logger.Logger) *Engine {
	return &Engine{DB: db, Logger: log, now: time.Now}
}

// Compute derives the discount a coupon grants on a total. Percentage coupons
// are clamped to MaxDiscount when one is set; fixed coupons never discount
// more than the total itself. The result is always in [0, total].
func Compute(coupon *models.Coupon, total float64) float64 {
	var discount float64
	switch coupon.Type {
	case models.CouponTypePercentage:
		discount = total * coupon.Value / 100
		if coupon.MaxDiscount > 0 && discount > coupon.MaxDiscount {
			discount = coupon.MaxDiscount
		}
	case models.CouponTypeFixed:
		discount = coupon.Value
	}
	if discount > total {
		discount = total
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

// Validate runs every eligibility rule against the coupon and returns it when
// all pass. It never mutates usage state.
func (e *Engine) Validate(code string, eventID string, total float64, identity models.Identity) (*models.Coupon, error) {
	coupon, err := e.DB.GetByCode(code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("coupon %s not found", code)
		}
		return nil, errs.External("failed to load coupon", err)
	}

	if !coupon.IsActive {
		return nil, errs.Validation("coupon %s is not active", coupon.Code)
	}

	now := e.now()
	if now.Before(coupon.StartDate) || now.After(coupon.EndDate) {
		return nil, errs.Validation("coupon %s is outside its validity window", coupon.Code)
	}

	if coupon.UsageCount >= coupon.MaxUsage {
		return nil, errs.Validation("coupon %s has reached its usage limit", coupon.Code)
	}

	if coupon.MinPurchase > 0 && total < coupon.MinPurchase {
		return nil, errs.Validation("coupon %s requires a minimum purchase of %.2f", coupon.Code, coupon.MinPurchase)
	}

	if len(coupon.ApplicableEvents) > 0 {
		applicable := false
		for _, id := range coupon.ApplicableEvents {
			if id == eventID {
				applicable = true
				break
			}
		}
		if !applicable {
			return nil, errs.Validation("coupon %s does not apply to this event", coupon.Code)
		}
	}

	if coupon.UserType != "" && coupon.UserType != identity.Role {
		return nil, errs.Validation("coupon %s is restricted to %s accounts", coupon.Code, coupon.UserType)
	}

	return coupon, nil
}

// Apply validates the coupon, consumes one use and returns the priced quote.
// The usage increment is conditional on the cap, so two bookings racing for a
// coupon's last use cannot both win.
func (e *Engine) Apply(code string, eventID string, total float64, identity models.Identity) (*Quote, error) {
	coupon, err := e.Validate(code, eventID, total, identity)
	if err != nil {
		monitoring.CouponApplications.WithLabelValues("rejected").Inc()
		return nil, err
	}

	ok, err := e.DB.IncrementUsage(coupon.Code)
	if err != nil {
		return nil, errs.External("failed to consume coupon use", err)
	}
	if !ok {
		monitoring.CouponApplications.WithLabelValues("exhausted").Inc()
		return nil, errs.Conflict("coupon %s has reached its usage limit", coupon.Code)
	}

	discount := Compute(coupon, total)
	monitoring.CouponApplications.WithLabelValues("applied").Inc()
	e.Logger.LogCoupon("APPLIED", coupon.Code, fmt.Sprintf("discount %.2f on total %.2f", discount, total))

	return &Quote{
		Code:           coupon.Code,
		TotalAmount:    total,
		DiscountAmount: discount,
		FinalAmount:    total - discount,
	}, nil
}

// Revert returns a consumed use when the booking that held it is cancelled
// while still pending.
func (e *Engine) Revert(code string) error {
	if code == "" {
		return nil
	}
	if err := e.DB.DecrementUsage(code); err != nil {
		return errs.External("failed to revert coupon use", err)
	}
	e.Logger.LogCoupon("REVERTED", code, "usage returned after cancellation")
	return nil
}

// CreateCoupon registers a new coupon after basic shape checks.
func (e *Engine) CreateCoupon(coupon models.Coupon) error {
	if coupon.Code == "" {
		return errs.Validation("coupon code is required")
	}
	if coupon.Type != models.CouponTypePercentage && coupon.Type != models.CouponTypeFixed {
		return errs.Validation("coupon type must be percentage or fixed")
	}
	if coupon.Value <= 0 {
		return errs.Validation("coupon value must be positive")
	}
	if coupon.Type == models.CouponTypePercentage && coupon.Value > 100 {
		return errs.Validation("percentage coupon value cannot exceed 100")
	}
	if coupon.MaxUsage <= 0 {
		return errs.Validation("coupon max usage must be positive")
	}
	if !coupon.EndDate.After(coupon.StartDate) {
		return errs.Validation("coupon end date must be after start date")
	}
	if err := e.DB.Create(coupon); err != nil {
		return errs.External("failed to create coupon", err)
	}
	e.Logger.LogCoupon("CREATED", coupon.Code, fmt.Sprintf("type=%s value=%.2f max_usage=%d", coupon.Type, coupon.Value, coupon.MaxUsage))
	return nil
}

func (e *Engine) ListCoupons() ([]models.Coupon, error) {
	coupons, err := e.DB.List()
	if err != nil {
		return nil, errs.External("failed to list coupons", err)
	}
	return coupons, nil
}

func (e *Engine) DeactivateCoupon(id string) error {
	if err := e.DB.Deactivate(id); err != nil {
		return errs.External("failed to deactivate coupon", err)
	}
	return nil
}
