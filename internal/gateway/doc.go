// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// リクエストルーティング（最長プレフィックス一致）、JWTトークンの検証、
// 内部サービスへのプロキシ転送、全バックエンドの並行ヘルスチェックを担当する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線として
// 機能する。検証済みのユーザーIDをヘッダーに付与して内部サービスに転送する。
package gateway
