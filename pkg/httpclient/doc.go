// Package httpclient はゲートウェイから内部サービスへのHTTP通信を行うクライアントを提供する。
//
// バックエンドごとに独立したコネクションプールを持つため、1つの遅い
// バックエンドが他の正常なバックエンド宛のリクエストを巻き込まない。
// リクエストのプロキシとヘルスチェックのプローブの両方で使用する。
package httpclient
