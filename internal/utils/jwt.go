package utils // package utils provides helpers for token issuance and password hashing

import (
    "errors"
    "strconv"
    "time"

    "github.com/golang-jwt/jwt/v5"

    "github.com/waqasameen944/Bus-Booking-System/internal/model"
)

// AccessToken is a signed JWT together with its expiry.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// Claims is the JWT payload: the registered claims plus the caller's role.
// The subject carries the numeric user ID as a decimal string.
type Claims struct {
    Role string `json:"role"`
    jwt.RegisteredClaims
}

// ErrInvalidToken is returned for any token that fails parsing, signature
// verification, expiry checks or subject decoding.
var ErrInvalidToken = errors.New("invalid token")

// NewAccessToken builds and signs an HS256 JWT for a user that expires
// ttlMin minutes from now.
func NewAccessToken(secret string, userID uint64, role string, ttlMin int) (AccessToken, error) {
    now := time.Now().UTC()
    exp := now.Add(time.Duration(ttlMin) * time.Minute)
    claims := Claims{
        Role: role,
        RegisteredClaims: jwt.RegisteredClaims{
            Subject:   strconv.FormatUint(userID, 10),
            IssuedAt:  jwt.NewNumericDate(now),
            ExpiresAt: jwt.NewNumericDate(exp),
        },
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw against secret and returns the principal
// it identifies.  Only HS256 tokens are accepted.
func ParseAccessToken(secret, raw string) (model.Principal, error) {
    var claims Claims
    tok, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
        return []byte(secret), nil
    }, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
    if err != nil || !tok.Valid {
        return model.Principal{}, ErrInvalidToken
    }
    id, err := strconv.ParseUint(claims.Subject, 10, 64)
    if err != nil || id == 0 {
        return model.Principal{}, ErrInvalidToken
    }
    return model.Principal{ID: id, Role: claims.Role}, nil
}
