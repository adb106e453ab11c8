package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/tableside/internal/model"
	"github.com/mmeshcher/tableside/internal/offer"
	"github.com/mmeshcher/tableside/internal/validation"
)

// SaveTable создаёт или обновляет столик ресторана. Текущая занятость столика не меняется.
func (s *Service) SaveTable(ctx context.Context, actor model.Actor, t *model.Table) error {
	const op = "service.SaveTable"

	if err := requireStaff(op, actor, t.RestaurantID); err != nil {
		return err
	}
	if strings.TrimSpace(t.ID) == "" {
		return model.Errorf(model.KindValidation, op, "table id is required")
	}
	if t.Seats < 0 {
		return model.Errorf(model.KindValidation, op, "seats cannot be negative")
	}
	if t.Status == "" {
		t.Status = model.TableAvailable
	}
	return translate(op, s.repo.SaveTable(ctx, t))
}

// SaveOffer создаёт или обновляет акцию. Счётчики использования сохраняются хранилищем.
func (s *Service) SaveOffer(ctx context.Context, actor model.Actor, o *model.Offer) error {
	const op = "service.SaveOffer"

	if err := requireStaff(op, actor, o.RestaurantID); err != nil {
		return err
	}

	if o.Type == model.OfferTypeOffer {
		o.Code = ""
	} else {
		code, ok := validation.NormalizeCouponCode(o.Code)
		if !ok {
			return model.Errorf(model.KindValidation, op, "coupon code %q must be 3-32 latin letters, digits, dashes or underscores", o.Code)
		}
		o.Code = code
	}
	if err := offer.Validate(*o); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
	}
	return translate(op, s.repo.SaveOffer(ctx, o))
}

// ListOffers возвращает акции и купоны ресторана.
func (s *Service) ListOffers(ctx context.Context, actor model.Actor, restaurantID string) ([]model.Offer, error) {
	const op = "service.ListOffers"

	if err := requireStaff(op, actor, restaurantID); err != nil {
		return nil, err
	}
	offers, err := s.repo.ListOffers(ctx, restaurantID)
	if err != nil {
		return nil, translate(op, err)
	}
	return offers, nil
}

// ListOfferUsages возвращает историю применений акции.
func (s *Service) ListOfferUsages(ctx context.Context, actor model.Actor, offerID string) ([]model.OfferUsage, error) {
	const op = "service.ListOfferUsages"

	o, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return nil, translate(op, err)
	}
	if err := requireStaff(op, actor, o.RestaurantID); err != nil {
		return nil, err
	}
	usages, err := s.repo.ListOfferUsages(ctx, offerID)
	if err != nil {
		return nil, translate(op, err)
	}
	return usages, nil
}

// GetBillingConfig возвращает ставки ресторана или конфигурацию по умолчанию.
func (s *Service) GetBillingConfig(ctx context.Context, restaurantID string) (model.BillingConfig, error) {
	cfg, err := s.billingConfig(ctx, restaurantID)
	if err != nil {
		return model.BillingConfig{}, translate("service.GetBillingConfig", err)
	}
	return *cfg, nil
}

// SaveBillingConfig сохраняет ставки сервисного сбора и налога.
func (s *Service) SaveBillingConfig(ctx context.Context, actor model.Actor, restaurantID string, cfg model.BillingConfig) error {
	const op = "service.SaveBillingConfig"

	if err := requireStaff(op, actor, restaurantID); err != nil {
		return err
	}
	if !validPercent(cfg.ServiceChargeRate) || !validPercent(cfg.SalesTaxRate) {
		return model.Errorf(model.KindValidation, op, "rates must be between 0 and 100")
	}
	return translate(op, s.repo.SaveBillingConfig(ctx, restaurantID, cfg))
}

// SaveReservationPolicy сохраняет правила возврата предоплаты.
func (s *Service) SaveReservationPolicy(ctx context.Context, actor model.Actor, restaurantID string, p model.ReservationPolicy) error {
	const op = "service.SaveReservationPolicy"

	if err := requireStaff(op, actor, restaurantID); err != nil {
		return err
	}
	if !validPercent(p.RefundPercent) || p.CancellationFee.Sign() < 0 {
		return model.Errorf(model.KindValidation, op, "refund percent must be between 0 and 100 and fee cannot be negative")
	}
	return translate(op, s.repo.SaveReservationPolicy(ctx, restaurantID, p))
}

func validPercent(v decimal.Decimal) bool {
	return v.Sign() >= 0 && v.LessThanOrEqual(decimal.NewFromInt(100))
}
