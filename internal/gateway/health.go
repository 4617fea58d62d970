package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/nao1215/geogate/pkg/httpclient"
)

// 集約ヘルスステータス。
const (
	// StatusHealthy は全バックエンドが到達可能であることを表す。
	StatusHealthy = "healthy"
	// StatusDegraded は一部のバックエンドのみ到達可能であることを表す。
	StatusDegraded = "degraded"
	// StatusUnhealthy は全バックエンドが到達不能であることを表す。
	StatusUnhealthy = "unhealthy"
)

// BackendHealth は1つのバックエンドのヘルスチェック結果。
type BackendHealth struct {
	// Reachable はプローブが成功したかどうか。
	Reachable bool `json:"reachable"`
	// LatencyMS はプローブの往復時間（ミリ秒）。
	LatencyMS int64 `json:"latency_ms"`
	// Error は到達不能時の理由。到達可能な場合は省略される。
	Error string `json:"error,omitempty"`
}

// HealthReport は全バックエンドのヘルスチェック結果の集約。
// /health呼び出しのたびに再計算し、キャッシュしない（古い結果は実際の
// 障害を隠してしまうため）。
type HealthReport struct {
	// OverallStatus は集約ステータス（healthy / degraded / unhealthy）。
	OverallStatus string `json:"overall_status"`
	// PerBackend はバックエンド名ごとの個別結果。
	// 集約がhealthyでも個別のレイテンシ悪化を観測できるよう常に含める。
	PerBackend map[string]BackendHealth `json:"per_backend"`
}

// checkHealth は全バックエンドに並行してプローブを送り、結果を集約する。
// 各プローブはprobeTimeoutで、全体はbudgetで制限する。budget超過時点で
// 未完了のプローブは reachable=false, error="timeout" として記録し、
// 応答をそれ以上待たない。バックエンドがいくつ固まっていても、この関数の
// 所要時間はbudgetを超えない。
func checkHealth(ctx context.Context, clients []*httpclient.Client, probeTimeout, budget time.Duration) HealthReport {
	perBackend := make(map[string]BackendHealth, len(clients))
	if len(clients) == 0 {
		return HealthReport{OverallStatus: StatusUnhealthy, PerBackend: perBackend}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type probeResult struct {
		name   string
		health BackendHealth
	}
	results := make(chan probeResult, len(clients))

	for _, client := range clients {
		go func(client *httpclient.Client) {
			probeCtx, probeCancel := context.WithTimeout(ctx, probeTimeout)
			defer probeCancel()

			start := time.Now()
			err := client.Probe(probeCtx)
			latency := time.Since(start)

			health := BackendHealth{
				Reachable: err == nil,
				LatencyMS: latency.Milliseconds(),
			}
			if err != nil {
				health.Error = probeFailure(err)
			}
			results <- probeResult{name: client.Name(), health: health}
		}(client)
	}

	// 全プローブの完了か全体予算の超過のどちらか早い方まで結果を収集する
	deadline := time.NewTimer(budget)
	defer deadline.Stop()
collect:
	for range clients {
		select {
		case r := <-results:
			perBackend[r.name] = r.health
		case <-deadline.C:
			break collect
		}
	}
	cancel()

	// 未完了のプローブはタイムアウトとして記録する
	for _, client := range clients {
		if _, ok := perBackend[client.Name()]; !ok {
			perBackend[client.Name()] = BackendHealth{
				Reachable: false,
				LatencyMS: budget.Milliseconds(),
				Error:     "timeout",
			}
		}
	}

	reachable := 0
	for _, h := range perBackend {
		if h.Reachable {
			reachable++
		}
	}

	// 集約ルール: 全到達=healthy、一部到達=degraded、全滅=unhealthy。
	// プローブの完了順序は結果に影響しない（到達可能性の可換な集約）。
	status := StatusDegraded
	switch reachable {
	case len(clients):
		status = StatusHealthy
	case 0:
		status = StatusUnhealthy
	}

	return HealthReport{OverallStatus: status, PerBackend: perBackend}
}

// probeFailure はプローブエラーをレポート用の理由文字列に変換する。
func probeFailure(err error) string {
	switch {
	case errors.Is(err, httpclient.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, httpclient.ErrConnectionRefused):
		return "connection_refused"
	default:
		return "unreachable"
	}
}
