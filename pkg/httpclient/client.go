package httpclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"
)

// バックエンド呼び出しエラー。転送層はこの区別に基づいて
// 504（タイムアウト）と503（接続不可・transport異常）を使い分ける。
var (
	// ErrTimeout はタイムアウト時間内にバックエンドが応答しなかったことを表す。
	ErrTimeout = errors.New("バックエンドへのリクエストがタイムアウト")
	// ErrConnectionRefused はバックエンドが接続を拒否したことを表す。
	ErrConnectionRefused = errors.New("バックエンドへの接続が拒否された")
	// ErrTransport はDNS解決失敗・コネクション切断等の通信エラーを表す。
	ErrTransport = errors.New("バックエンドとの通信に失敗")
)

// Client は1つのバックエンドサービスへのHTTP通信を行うクライアント。
// バックエンドごとに専用のコネクションプールとタイムアウト設定を持つ。
type Client struct {
	// name はバックエンドの識別名（例: "user-service"）。
	name string
	// baseURL は接続先サービスのベースURL。
	baseURL string
	// healthPath はヘルスチェック用のプローブ先パス。
	healthPath string
	// timeout はリクエスト1回あたりのタイムアウト。
	timeout time.Duration
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
}

// New は指定されたバックエンド用のHTTPクライアントを生成する。
// baseURLには接続先サービスのベースURL（例: "http://user-service:8000"）を指定する。
// コネクションプールはクライアントごとに独立して確保する。
func New(name, baseURL, healthPath string, timeout time.Duration) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		name:       name,
		baseURL:    baseURL,
		healthPath: healthPath,
		timeout:    timeout,
		httpClient: &http.Client{Transport: transport},
	}
}

// Name はバックエンドの識別名を返す。
func (c *Client) Name() string {
	return c.name
}

// Do は指定されたメソッド・パスでバックエンドにリクエストを送信する。
// レスポンスボディはストリームのまま返すため、呼び出し側がCloseする責務を持つ。
// タイムアウトはクライアント生成時の設定をコンテキストのデッドラインとして適用する。
// この層ではリトライしない。リトライの是非は冪等性を判断できる転送層が決める。
func (c *Client) Do(ctx context.Context, method, path, rawQuery string, header http.Header, body io.Reader) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	targetURL := c.baseURL + path
	if rawQuery != "" {
		targetURL += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, method, targetURL, body)
	if err != nil {
		cancel()
		return nil, errors.Join(ErrTransport, err)
	}
	if header != nil {
		req.Header = header
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, c.classify(err)
	}

	// ボディの読み取りが終わるまでコンテキストを生かしておく
	resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// Probe はヘルスチェック用の軽量なGETリクエストを送信する。
// ステータスコードが2xxであれば到達可能とみなす。ボディは読み捨てる。
// タイムアウトは呼び出し側のコンテキストで制御する（ヘルスチェックは
// プロキシとは別のプローブ用タイムアウトを使うため）。
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return errors.Join(ErrTransport, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classify(err)
	}
	defer resp.Body.Close()

	// プローブのレスポンスは小さい前提だが、念のため読み取り量を制限する
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Join(ErrTransport, errors.New(resp.Status))
	}
	return nil
}

// classify はnet/httpのエラーをこのパッケージのエラー種別に分類する。
func (c *Client) classify(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return errors.Join(ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return errors.Join(ErrConnectionRefused, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Join(ErrTimeout, err)
	}
	return errors.Join(ErrTransport, err)
}

// cancelReadCloser はボディのClose時にコンテキストのキャンセルを連動させるラッパー。
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

// Close はボディを閉じ、関連するコンテキストをキャンセルする。
func (r *cancelReadCloser) Close() error {
	err := r.ReadCloser.Close()
	r.cancel()
	return err
}
