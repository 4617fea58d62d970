// Package middleware はGinベースのAPI GatewayのHTTPミドルウェアと
// 認証トークンの検証ロジックを提供する。
//
// JWTトークンの検証・発行、リクエストID付与、パニックリカバリ、
// CORS設定を含む。トークン検証は副作用を持たない純粋関数として実装し、
// ルーティング層がルートごとの保護フラグに応じて呼び出す。
package middleware
