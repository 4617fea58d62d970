package gateway

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/geogate/pkg/httpclient"
	"github.com/nao1215/geogate/pkg/middleware"
)

// hopByHopHeaders はプロキシ境界を越えて転送してはならないヘッダーの集合。
// Hostはhttp.RequestのHostフィールドで管理されるため別途除外する。
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// handleForward はルーティングと認証を行い、リクエストをバックエンドに転送するハンドラを返す。
// 1リクエストの流れ: ルート解決 → （保護ルートなら）トークン検証 → プレフィックス除去 → 転送 → 応答中継。
// ルーティング・認証の失敗はゲートウェイ内で4xxとして完結し、バックエンドには到達しない。
func (s *Server) handleForward() gin.HandlerFunc {
	return func(c *gin.Context) {
		route, ok := s.routes.resolve(c.Request.URL.Path)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "ルートが見つかりません",
				"path":  c.Request.URL.Path,
			})
			return
		}

		// クライアントによるなりすましを防ぐため、検証前にX-User-IDを必ず捨てる
		c.Request.Header.Del(middleware.HeaderKeyUserID)

		if route.Protected {
			claims, err := s.authorize(c)
			if err != nil {
				reason := authReason(err)
				log.Printf("認証拒否: path=%s reason=%s request_id=%s",
					c.Request.URL.Path, reason, middleware.GetRequestID(c))
				c.JSON(http.StatusUnauthorized, gin.H{
					"error":  "認証に失敗しました",
					"reason": reason,
				})
				return
			}
			// 検証済みユーザーIDを内部サービスに伝播する。
			// 内部サービスはゲートウェイを信頼境界としてトークンを再検証しない。
			c.Request.Header.Set(middleware.HeaderKeyUserID, claims.Subject)
		}

		s.forward(c, route)
	}
}

// authorize はAuthorizationヘッダーからBearerトークンを取り出して検証する。
func (s *Server) authorize(c *gin.Context) (*middleware.JWTClaims, error) {
	token, err := middleware.ExtractBearerToken(c.GetHeader("Authorization"))
	if err != nil {
		return nil, err
	}
	return middleware.VerifyToken(s.cfg.Secret, s.cfg.Algorithm, token, time.Now())
}

// authReason はトークン検証エラーをレスポンス用の機械可読な理由文字列に変換する。
func authReason(err error) string {
	switch {
	case errors.Is(err, middleware.ErrTokenMissing):
		return "missing credential"
	case errors.Is(err, middleware.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, middleware.ErrTokenExpired):
		return "expired"
	default:
		return "bad_signature"
	}
}

// forward は解決済みのルートに従ってリクエストをバックエンドに転送し、
// レスポンスをそのまま中継する。バックエンドが意図して返した4xx/5xxは
// ゲートウェイで解釈せず素通しする。
func (s *Server) forward(c *gin.Context, route *Route) {
	client := s.backends[route.Backend]
	path := stripPrefix(c.Request.URL.Path, route.Prefix)
	header := outboundHeader(c.Request.Header)
	header.Set(middleware.HeaderKeyRequestID, middleware.GetRequestID(c))
	ctx := c.Request.Context()

	resp, err := client.Do(ctx, c.Request.Method, path, c.Request.URL.RawQuery, header, c.Request.Body)
	if err != nil && isIdempotent(c.Request.Method) && c.Request.ContentLength == 0 && ctx.Err() == nil {
		// 冪等かつボディなしのメソッドに限り、新しいタイムアウトで1回だけ再試行する。
		// 初回送信でボディは消費済みのため、ボディ付きリクエストは再現できない。
		// POST等の再試行はバックエンド側に副作用を二重に起こしうるため行わない。
		log.Printf("転送を再試行: backend=%s method=%s path=%s error=%v",
			route.Backend, c.Request.Method, path, err)
		resp, err = client.Do(ctx, c.Request.Method, path, c.Request.URL.RawQuery, header, http.NoBody)
	}
	if err != nil {
		// 呼び出し元が切断した場合は応答先が存在しないため、
		// バックエンド障害としては扱わずそのまま打ち切る。
		if ctx.Err() != nil {
			c.Abort()
			return
		}
		status, reason := backendFailure(err)
		log.Printf("転送に失敗: backend=%s method=%s path=%s reason=%s request_id=%s error=%v",
			route.Backend, c.Request.Method, path, reason, middleware.GetRequestID(c), err)
		c.JSON(status, gin.H{
			"error":   "バックエンドサービスとの通信に失敗しました",
			"backend": route.Backend,
			"reason":  reason,
		})
		return
	}
	defer resp.Body.Close()

	// ステータス・ヘッダー・ボディを改変せずに中継する。
	// ボディはバッファリングせずストリームのままコピーする。
	dst := c.Writer.Header()
	for k, values := range resp.Header {
		if _, hop := hopByHopHeaders[http.CanonicalHeaderKey(k)]; hop {
			continue
		}
		dst[k] = values
	}
	c.Writer.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		// ここではステータス送信済みのため、ログに残すことしかできない
		log.Printf("レスポンスボディの中継に失敗: backend=%s error=%v", route.Backend, err)
	}
}

// outboundHeader はインバウンドヘッダーからホップバイホップヘッダーとHostを
// 取り除いた転送用ヘッダーを構築する。
func outboundHeader(in http.Header) http.Header {
	out := make(http.Header, len(in))
	for k, values := range in {
		if _, hop := hopByHopHeaders[http.CanonicalHeaderKey(k)]; hop {
			continue
		}
		if http.CanonicalHeaderKey(k) == "Host" {
			continue
		}
		out[k] = values
	}
	// Connectionヘッダーが名指しするヘッダーも転送対象から外す。
	// 値はカンマ区切りで複数のヘッダー名を列挙できる（例: "close, X-Custom"）。
	for _, value := range in.Values("Connection") {
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out.Del(name)
			}
		}
	}
	return out
}

// isIdempotent は再試行しても副作用が増えないHTTPメソッドかどうかを判定する。
func isIdempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// backendFailure はバックエンド呼び出しエラーをHTTPステータスと理由文字列に変換する。
func backendFailure(err error) (int, string) {
	switch {
	case errors.Is(err, httpclient.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, httpclient.ErrConnectionRefused):
		return http.StatusServiceUnavailable, "connection_refused"
	default:
		return http.StatusServiceUnavailable, "transport"
	}
}
