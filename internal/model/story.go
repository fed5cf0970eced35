package model

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Story is the slice of the stories table this pipeline reads. The rest
// of the journaling app owns the table; we only need content and author
// identity for verification dispatch.
type Story struct {
	ID           string    `db:"id" json:"id"`
	AuthorWallet string    `db:"author_wallet" json:"author_wallet"`
	Content      string    `db:"content" json:"content"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Claims is the wallet-session token payload. Tokens are issued by the
// auth collaborator after wallet-signature login; this service only
// verifies them.
type Claims struct {
	Wallet string `json:"wallet"`
	jwt.RegisteredClaims
}

// Token verification errors, shared between the verifier and middleware.
var (
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenInvalid   = errors.New("token is invalid")
)
