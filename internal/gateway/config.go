package gateway

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はゲートウェイの起動時設定。プロセス起動時に1度だけ構築し、
// 以降は変更しない。全コンポーネントは読み取り専用で参照するため、
// リクエスト処理のホットパスにロックは不要。
type Config struct {
	// Port はサーバーのリッスンポート。
	Port string
	// Secret はJWT署名検証用の秘密鍵。auth-serviceと共有する。
	Secret string
	// Algorithm はJWT署名アルゴリズム。この1つ以外は拒否する。
	Algorithm string
	// RequestTimeout はプロキシ1リクエストあたりのタイムアウト。
	RequestTimeout time.Duration
	// ProbeTimeout はヘルスチェックのプローブ1回あたりのタイムアウト。
	ProbeTimeout time.Duration
	// HealthBudget はヘルスチェック全体の上限時間。
	HealthBudget time.Duration
	// CORSOrigins はクロスオリジンリクエストを許可するオリジンのリスト。
	CORSOrigins []string
	// Backends は転送先バックエンドの定義リスト。
	Backends []BackendConfig
	// Routes はルーティングテーブルの定義リスト。宣言順が同一長プレフィックスの優先順位になる。
	Routes []RouteConfig
}

// BackendConfig は1つのバックエンドサービスの接続設定。
type BackendConfig struct {
	// Name はバックエンドの識別名（例: "user-service"）。
	Name string `yaml:"name"`
	// URL はバックエンドのベースURL。
	URL string `yaml:"url"`
	// HealthPath はヘルスチェックのプローブ先パス。省略時は /health。
	HealthPath string `yaml:"health_path"`
}

// RouteConfig は1つのルーティングルールの設定。
type RouteConfig struct {
	// Prefix はインバウンドパスのプレフィックス（例: "/api/v1/users"）。
	Prefix string `yaml:"prefix"`
	// Backend は転送先バックエンドの識別名。
	Backend string `yaml:"backend"`
	// Protected はJWT検証を必須とするかどうか。
	Protected bool `yaml:"protected"`
}

// fileConfig はYAML設定ファイルの構造。時間はtime.ParseDuration形式の文字列で指定する。
type fileConfig struct {
	RequestTimeout string          `yaml:"request_timeout"`
	ProbeTimeout   string          `yaml:"probe_timeout"`
	HealthBudget   string          `yaml:"health_budget"`
	CORSOrigins    []string        `yaml:"cors_origins"`
	Backends       []BackendConfig `yaml:"backends"`
	Routes         []RouteConfig   `yaml:"routes"`
}

// LoadConfig はYAML設定ファイルと環境変数からゲートウェイ設定を構築する。
// 秘密鍵は設定ファイルには置かず、環境変数JWT_SECRETからのみ読み込む。
// 必須設定の欠落・不正はエラーを返し、呼び出し側（main）がプロセスを終了させる。
// 実行中の再読み込みはサポートしない。
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("設定ファイルのパースに失敗: %w", err)
	}

	cfg := &Config{
		Port:           getEnvOr("PORT", "8080"),
		Secret:         os.Getenv("JWT_SECRET"),
		Algorithm:      getEnvOr("JWT_ALGORITHM", "HS256"),
		RequestTimeout: 30 * time.Second,
		ProbeTimeout:   2 * time.Second,
		HealthBudget:   5 * time.Second,
		CORSOrigins:    fc.CORSOrigins,
		Backends:       fc.Backends,
		Routes:         fc.Routes,
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	if err := parseDurationInto(&cfg.RequestTimeout, fc.RequestTimeout, "request_timeout"); err != nil {
		return nil, err
	}
	if err := parseDurationInto(&cfg.ProbeTimeout, fc.ProbeTimeout, "probe_timeout"); err != nil {
		return nil, err
	}
	if err := parseDurationInto(&cfg.HealthBudget, fc.HealthBudget, "health_budget"); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate は設定の整合性を検証する。起動時に1度だけ呼ばれる。
func (c *Config) validate() error {
	if c.Secret == "" {
		return fmt.Errorf("環境変数JWT_SECRETが設定されていない")
	}
	if len(c.Backends) == 0 {
		return fmt.Errorf("バックエンドが1つも設定されていない")
	}
	if len(c.Routes) == 0 {
		return fmt.Errorf("ルートが1つも設定されていない")
	}

	backendNames := make(map[string]struct{}, len(c.Backends))
	for i := range c.Backends {
		b := &c.Backends[i]
		if b.Name == "" {
			return fmt.Errorf("バックエンドの識別名が空")
		}
		if _, ok := backendNames[b.Name]; ok {
			return fmt.Errorf("バックエンドの識別名が重複: %s", b.Name)
		}
		backendNames[b.Name] = struct{}{}

		u, err := url.Parse(b.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("バックエンド %s のURLが不正: %q", b.Name, b.URL)
		}
		if b.HealthPath == "" {
			b.HealthPath = "/health"
		}
	}

	prefixes := make(map[string]struct{}, len(c.Routes))
	for i := range c.Routes {
		r := &c.Routes[i]
		if !strings.HasPrefix(r.Prefix, "/") {
			return fmt.Errorf("ルートのプレフィックスは/で始まる必要がある: %q", r.Prefix)
		}
		// 末尾のスラッシュはマッチ判定を単純にするため正規化する
		if r.Prefix != "/" {
			r.Prefix = strings.TrimSuffix(r.Prefix, "/")
		}
		if _, ok := prefixes[r.Prefix]; ok {
			return fmt.Errorf("ルートのプレフィックスが重複: %s", r.Prefix)
		}
		prefixes[r.Prefix] = struct{}{}

		if _, ok := backendNames[r.Backend]; !ok {
			return fmt.Errorf("ルート %s の転送先バックエンドが未定義: %s", r.Prefix, r.Backend)
		}
	}
	return nil
}

// parseDurationInto はYAMLの時間文字列をパースしてdstに設定する。空文字列はデフォルト値を維持する。
func parseDurationInto(dst *time.Duration, value, key string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("設定 %s の時間形式が不正: %q", key, value)
	}
	if d <= 0 {
		return fmt.Errorf("設定 %s は正の値である必要がある: %q", key, value)
	}
	*dst = d
	return nil
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
