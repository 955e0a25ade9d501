package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aproductiontitle/capi-public/utils"
	"github.com/golang-jwt/jwt/v5"
)

// Webhook token error constants
var (
	ErrWebhookTokenExpired = errors.New("webhook token has expired")
	ErrWebhookTokenInvalid = errors.New("invalid webhook token")
)

// WebhookTokenService mints and validates the per-call JWT embedded in the
// callback URL handed to the voice provider. Tokens are HMAC-signed so the
// webhook handler can authenticate events without a provider round trip.
type WebhookTokenService interface {
	MintToken(campaignID, contactID uint) (string, error)
	ValidateToken(token string) (*WebhookTokenClaims, error)
}

// WebhookTokenClaims represents the claims in a webhook callback token
type WebhookTokenClaims struct {
	CampaignID uint      `json:"campaign_id"`
	ContactID  uint      `json:"contact_id"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// WebhookTokenServiceImpl implements WebhookTokenService
type WebhookTokenServiceImpl struct {
	secretKey []byte
	tokenTTL  time.Duration
	issuer    string
}

// NewWebhookTokenService creates a new webhook token service
func NewWebhookTokenService(secretKey string, tokenTTL time.Duration, issuer string) (WebhookTokenService, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("secret key is required")
	}
	if tokenTTL <= 0 {
		tokenTTL = utils.WebhookTokenTTL
	}

	return &WebhookTokenServiceImpl{
		secretKey: []byte(secretKey),
		tokenTTL:  tokenTTL,
		issuer:    issuer,
	}, nil
}

// MintToken generates a signed callback token scoped to one campaign contact
func (s *WebhookTokenServiceImpl) MintToken(campaignID, contactID uint) (string, error) {
	now := utils.UTCNow()

	claims := jwt.MapClaims{
		"campaign_id": campaignID,
		"contact_id":  contactID,
		"iat":         now.Unix(),
		"exp":         now.Add(s.tokenTTL).Unix(),
		"iss":         s.issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign webhook token: %w", err)
	}

	return signed, nil
}

// ValidateToken validates a callback token and returns its claims
func (s *WebhookTokenServiceImpl) ValidateToken(token string) (*WebhookTokenClaims, error) {
	parsedToken, err := jwt.Parse(token, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		if strings.Contains(err.Error(), "expired") || strings.Contains(err.Error(), "exp") {
			return nil, ErrWebhookTokenExpired
		}
		return nil, ErrWebhookTokenInvalid
	}
	if !parsedToken.Valid {
		return nil, ErrWebhookTokenInvalid
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrWebhookTokenInvalid
	}

	campaignID, ok := claims["campaign_id"].(float64)
	if !ok {
		return nil, ErrWebhookTokenInvalid
	}
	contactID, ok := claims["contact_id"].(float64)
	if !ok {
		return nil, ErrWebhookTokenInvalid
	}
	issuedAt, ok := claims["iat"].(float64)
	if !ok {
		return nil, ErrWebhookTokenInvalid
	}
	expiresAt, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrWebhookTokenInvalid
	}

	if utils.UTCNow().After(time.Unix(int64(expiresAt), 0)) {
		return nil, ErrWebhookTokenExpired
	}

	return &WebhookTokenClaims{
		CampaignID: uint(campaignID),
		ContactID:  uint(contactID),
		IssuedAt:   time.Unix(int64(issuedAt), 0),
		ExpiresAt:  time.Unix(int64(expiresAt), 0),
	}, nil
}
