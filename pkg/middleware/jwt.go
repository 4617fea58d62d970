package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
// 認証済みユーザーの識別子をサービス間で伝播するために使用する。
type JWTClaims struct {
	jwt.RegisteredClaims
	// Username は認証済みユーザーのユーザー名。auth-serviceが sub クレームに加えて設定する。
	Username string `json:"username,omitempty"`
}

// HeaderKeyUserID はゲートウェイが検証済みユーザーIDを内部サービスに伝播するためのHTTPヘッダーキー。
// このヘッダーを受け取った内部サービスはトークンを再検証する必要がない。
const HeaderKeyUserID = "X-User-ID"

// トークン検証エラー。いずれもクライアントには401として返すが、
// ログ・可観測性のために区別できるようにしておく。
var (
	// ErrTokenMissing はAuthorizationヘッダーが存在しないことを表す。
	ErrTokenMissing = errors.New("認証トークンが存在しない")
	// ErrTokenMalformed はトークン文字列がJWTとしてパースできないことを表す。
	ErrTokenMalformed = errors.New("認証トークンの形式が不正")
	// ErrTokenBadSignature は署名が設定済みの秘密鍵・アルゴリズムと一致しないことを表す。
	ErrTokenBadSignature = errors.New("認証トークンの署名が不正")
	// ErrTokenExpired はトークンの有効期限が切れていることを表す。
	ErrTokenExpired = errors.New("認証トークンの有効期限切れ")
)

// GenerateToken はユーザー情報からJWTトークンを生成する。
// auth-serviceと同じ秘密鍵を共有しているため、テストや運用ツールが
// ゲートウェイ側でトークンを発行できる。
func GenerateToken(secret, subject, username string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// VerifyToken はトークンの署名・アルゴリズム・有効期限を検証し、クレームを返す。
// アルゴリズムは設定された1つのみを許可する（アルゴリズム混同攻撃の防止）。
// 有効期限は排他的な境界で判定する: exp == now のトークンは期限切れとして扱う。
// 副作用を持たない純粋関数であり、並行呼び出しに対して安全。
func VerifyToken(secret, algorithm, tokenString string, now time.Time) (*JWTClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{algorithm}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenBadSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			// 未知の検証エラーは署名不正として扱う（許可より拒否に倒す）
			return nil, ErrTokenBadSignature
		}
	}
	if !token.Valid {
		return nil, ErrTokenBadSignature
	}

	// jwt/v5 の期限判定は now < exp を要求するため exp == now はここに到達しないが、
	// 排他的境界の不変条件を検証レイヤーの責務として明示しておく。
	if claims.ExpiresAt == nil || !claims.ExpiresAt.Time.After(now) {
		return nil, ErrTokenExpired
	}

	return claims, nil
}

// ExtractBearerToken はAuthorizationヘッダー値からBearerトークンを取り出す。
// ヘッダーが空の場合はErrTokenMissing、Bearer形式でない場合はErrTokenMalformedを返す。
func ExtractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrTokenMissing
	}
	tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
	if !found || tokenString == "" {
		return "", ErrTokenMalformed
	}
	return tokenString, nil
}
