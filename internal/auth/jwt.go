package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

// Типы токенов.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

const (
	DefaultAccessTTL  = 24 * time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	// ErrInvalidToken — токен не прошёл проверку подписи, срока или формата.
	ErrInvalidToken = errors.New("token is invalid or expired")
	// ErrWrongTokenType — передан токен не того типа (например, refresh вместо access).
	ErrWrongTokenType = errors.New("token has wrong type")
)

// Claims — содержимое токена.
type Claims struct {
	TokenType string `json:"token_type"`
	UserID    int64  `json:"user_id"`
	IsStaff   bool   `json:"is_staff"`
	jwt.RegisteredClaims
}

// Actor переводит claims в участника операции.
func (c Claims) Actor() domain.Actor {
	return domain.Actor{UserID: c.UserID, IsStaff: c.IsStaff}
}

// TokenPair — пара access/refresh токенов.
type TokenPair struct {
	Access  string
	Refresh string
}

// TokenManager выпускает и проверяет JWT (HS256).
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenManager создаёт менеджер токенов; нулевые TTL заменяются значениями по умолчанию.
func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue выпускает пару токенов для пользователя.
func (m *TokenManager) Issue(user domain.User) (TokenPair, error) {
	access, err := m.sign(user.ID, user.IsStaff, TokenTypeAccess, m.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := m.sign(user.ID, user.IsStaff, TokenTypeRefresh, m.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh выпускает новый access-токен по refresh-токену.
func (m *TokenManager) Refresh(refreshToken string) (string, error) {
	claims, err := m.Parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return "", err
	}
	return m.sign(claims.UserID, claims.IsStaff, TokenTypeAccess, m.accessTTL)
}

// Verify проверяет подпись и срок действия токена любого типа.
func (m *TokenManager) Verify(token string) error {
	_, err := m.Parse(token, "")
	return err
}

// Parse проверяет токен; пустой expectedType принимает любой тип.
func (m *TokenManager) Parse(token, expectedType string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if expectedType != "" && claims.TokenType != expectedType {
		return Claims{}, ErrWrongTokenType
	}
	if claims.UserID <= 0 {
		return Claims{}, fmt.Errorf("%w: user_id is missing", ErrInvalidToken)
	}
	return claims, nil
}

func (m *TokenManager) sign(userID int64, isStaff bool, tokenType string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		TokenType: tokenType,
		UserID:    userID,
		IsStaff:   isStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
