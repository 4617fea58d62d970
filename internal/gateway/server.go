package gateway

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/geogate/pkg/httpclient"
	"github.com/nao1215/geogate/pkg/middleware"
)

// Server はAPI Gatewayサービスの HTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg は起動時に構築した読み取り専用の設定。
	cfg *Config
	// routes はルーティングテーブル。
	routes *routeTable
	// backends はバックエンド識別名ごとのHTTPクライアント。
	// クライアントごとに独立したコネクションプールを持つ。
	backends map[string]*httpclient.Client
	// healthTargets はヘルスチェック対象のクライアントリスト。設定ファイルの宣言順を維持する。
	healthTargets []*httpclient.Client
}

// NewServer は検証済みの設定から新しいGatewayサーバーを生成する。
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("設定がnil")
	}

	backends := make(map[string]*httpclient.Client, len(cfg.Backends))
	healthTargets := make([]*httpclient.Client, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		client := httpclient.New(b.Name, b.URL, b.HealthPath, cfg.RequestTimeout)
		backends[b.Name] = client
		healthTargets = append(healthTargets, client)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.CORSOrigins))

	s := &Server{
		router:        router,
		cfg:           cfg,
		routes:        newRouteTable(cfg.Routes),
		backends:      backends,
		healthTargets: healthTargets,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.cfg.Port))
}

// setupRoutes はAPIルーティングを設定する。
// ゲートウェイ自身のエンドポイントは /health のみで、それ以外の全パスは
// ルーティングテーブルの最長プレフィックス一致でバックエンドに転送する。
func (s *Server) setupRoutes() {
	// ヘルスチェック（認証不要）。全バックエンドへ並行プローブした集約結果を返す。
	s.router.GET("/health", s.handleHealth())

	// Ginの静的ルートに一致しないパスはすべてルーティングテーブルで解決する
	s.router.NoRoute(s.handleForward())
}

// handleHealth は全バックエンドのヘルスチェック結果を集約して返すハンドラを返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		report := checkHealth(c.Request.Context(), s.healthTargets, s.cfg.ProbeTimeout, s.cfg.HealthBudget)

		// 集約がunhealthyでもゲートウェイ自身は生きているため200で返す。
		// 監視側はoverall_statusフィールドで判断する。
		c.JSON(http.StatusOK, report)
	}
}
