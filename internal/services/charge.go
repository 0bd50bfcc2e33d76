package services

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/google/uuid"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"

	"enrollpay_echo/internal/apperrors"
	"enrollpay_echo/internal/models"
)

// ChargeSessionResult is what a caller needs to complete a checkout.
type ChargeSessionResult struct {
	PaymentIntentID string `json:"payment_intent_id"`
	Token           string `json:"token"`
	RedirectURL     string `json:"redirect_url"`
	IsExisting      bool   `json:"is_existing"`
}

// ChargeService is the opaque interface to the charge-capture collaborator.
// The engine initiates and cancels charge attempts through it and learns
// outcomes only via webhook callbacks into the ledger.
type ChargeService interface {
	InitiateCharge(ctx context.Context, obligationID uint, forceNew bool, callbackURL string) (*ChargeSessionResult, error)
	CancelCharge(ctx context.Context, paymentIntentID string) error
}

// MidtransChargeService implements ChargeService on Midtrans Snap, reusing an
// obligation's active session when the gateway still considers it open.
type MidtransChargeService struct {
	db     *gorm.DB
	client *MidtransService
}

func NewMidtransChargeService(db *gorm.DB, client *MidtransService) *MidtransChargeService {
	return &MidtransChargeService{db: db, client: client}
}

func (s *MidtransChargeService) activeSession(ctx context.Context, obligationID uint) (*models.ChargeSession, error) {
	var session models.ChargeSession
	err := s.db.WithContext(ctx).
		Where("obligation_id = ? AND is_active = ?", obligationID, true).
		Order("created_at desc").First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (s *MidtransChargeService) deactivate(ctx context.Context, session *models.ChargeSession) {
	session.IsActive = false
	s.db.WithContext(ctx).Save(session)
}

// InitiateCharge opens (or resumes) a checkout session for an open
// obligation. An existing active session is checked against the gateway
// first: settled means the webhook will arrive shortly and a new session
// would double-charge; dead sessions are replaced.
func (s *MidtransChargeService) InitiateCharge(ctx context.Context, obligationID uint, forceNew bool, callbackURL string) (*ChargeSessionResult, error) {
	var ob models.PaymentObligation
	err := s.db.WithContext(ctx).Preload("Enrollment").Preload("Enrollment.Plan").First(&ob, obligationID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFoundf("obligation %d", obligationID)
		}
		return nil, err
	}
	if !ob.Open() {
		return nil, apperrors.Validationf("obligation %d is %s and cannot be charged", ob.ID, ob.Status)
	}

	existing, err := s.activeSession(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		statusResp, err := s.client.CheckTransaction(existing.PaymentIntentID)
		if err == nil {
			switch statusResp.TransactionStatus {
			case "settlement", "capture":
				return nil, apperrors.Validationf("obligation %d already has a settled charge", ob.ID)
			case "deny", "expire", "cancel", "failure":
				s.deactivate(ctx, existing)
			default: // pending at the gateway
				if forceNew {
					_ = s.client.CancelTransaction(existing.PaymentIntentID)
					s.deactivate(ctx, existing)
				} else {
					var snapResp snap.Response
					if err := json.Unmarshal(existing.ResponseMetadata, &snapResp); err == nil {
						return &ChargeSessionResult{
							PaymentIntentID: existing.PaymentIntentID,
							Token:           snapResp.Token,
							RedirectURL:     snapResp.RedirectURL,
							IsExisting:      true,
						}, nil
					}
					s.deactivate(ctx, existing)
				}
			}
		} else {
			s.deactivate(ctx, existing)
		}
	}

	intentID := fmt.Sprintf("obligation-%d-%s", ob.ID, uuid.NewString())
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  intentID,
			GrossAmt: ob.Amount,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    fmt.Sprintf("enrollment-%d", ob.EnrollmentID),
				Name:  fmt.Sprintf("Payment %d of %s", ob.PaymentNumber, ob.Enrollment.Plan.Name),
				Price: ob.Amount,
				Qty:   1,
			},
		},
	}
	if callbackURL != "" {
		req.Callbacks = &snap.Callbacks{Finish: callbackURL}
	}

	resp, err := s.client.CreateTransaction(intentID, ob.Amount, req)
	if err != nil {
		return nil, err
	}

	reqBytes, _ := json.Marshal(req)
	respBytes, _ := json.Marshal(resp)
	session := models.ChargeSession{
		EnrollmentID:     ob.EnrollmentID,
		ObligationID:     ob.ID,
		PaymentGateway:   models.PaymentGatewayMidtrans,
		PaymentIntentID:  intentID,
		IsActive:         true,
		RequestMetadata:  reqBytes,
		ResponseMetadata: respBytes,
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, err
	}

	// Mark the obligation in flight until the gateway reports an outcome.
	// Processing obligations stay out of retry and overdue sweeps.
	if err := s.db.WithContext(ctx).Model(&models.PaymentObligation{}).
		Where("id = ? AND status IN ?", ob.ID,
			[]models.ObligationStatus{models.ObligationStatusPending, models.ObligationStatusFailed}).
		Update("status", models.ObligationStatusProcessing).Error; err != nil {
		return nil, err
	}

	return &ChargeSessionResult{
		PaymentIntentID: intentID,
		Token:           resp.Token,
		RedirectURL:     resp.RedirectURL,
		IsExisting:      false,
	}, nil
}

// CancelCharge cancels a pending session at the gateway, deactivates it and
// releases the obligation's in-flight hold.
func (s *MidtransChargeService) CancelCharge(ctx context.Context, paymentIntentID string) error {
	if err := s.client.CancelTransaction(paymentIntentID); err != nil {
		return err
	}
	var session models.ChargeSession
	if err := s.db.WithContext(ctx).
		Where("payment_intent_id = ?", paymentIntentID).First(&session).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}
	if err := s.db.WithContext(ctx).Model(&models.ChargeSession{}).
		Where("payment_intent_id = ?", paymentIntentID).
		Update("is_active", false).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&models.PaymentObligation{}).
		Where("id = ? AND status = ?", session.ObligationID, models.ObligationStatusProcessing).
		Update("status", models.ObligationStatusPending).Error
}
