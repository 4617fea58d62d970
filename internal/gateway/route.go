package gateway

import "strings"

// Route は1つのルーティングルール。起動時に構築した後は変更しないため、
// 複数のリクエスト処理ゴルーチンからロックなしで参照できる。
type Route struct {
	// Prefix はインバウンドパスのプレフィックス。
	Prefix string
	// Backend は転送先バックエンドの識別名。
	Backend string
	// Protected はJWT検証を必須とするかどうか。
	Protected bool
}

// routeTable はプレフィックスからバックエンドへの静的なルーティングテーブル。
type routeTable struct {
	// routes は設定ファイルの宣言順を維持したルートのリスト。
	routes []Route
}

// newRouteTable は検証済みの設定からルーティングテーブルを構築する。
func newRouteTable(configs []RouteConfig) *routeTable {
	routes := make([]Route, 0, len(configs))
	for _, rc := range configs {
		routes = append(routes, Route{
			Prefix:    rc.Prefix,
			Backend:   rc.Backend,
			Protected: rc.Protected,
		})
	}
	return &routeTable{routes: routes}
}

// resolve はパスに最長プレフィックス一致するルートを返す。
// 同じ長さのプレフィックスが複数一致する場合は設定ファイルで先に宣言された
// ルートが勝つ（プレフィックスの重複は設定検証で禁止しているため、
// 実際に同着が起きることはないが、判定は厳密な「より長い」比較で行う）。
// 一致するルートが無い場合は2番目の戻り値がfalseになる。
func (t *routeTable) resolve(path string) (*Route, bool) {
	var best *Route
	for i := range t.routes {
		r := &t.routes[i]
		if !matchPrefix(path, r.Prefix) {
			continue
		}
		if best == nil || len(r.Prefix) > len(best.Prefix) {
			best = r
		}
	}
	return best, best != nil
}

// matchPrefix はパスがプレフィックスにセグメント境界で一致するかを判定する。
// "/api/v1/users" は "/api/v1/users/42" に一致するが "/api/v1/usersearch" には一致しない。
func matchPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// stripPrefix はパスから一致したプレフィックスを取り除いた残りを返す。
// 残りが空の場合はバックエンドのルートパス "/" に正規化する。
func stripPrefix(path, prefix string) string {
	if prefix == "/" {
		return path
	}
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" {
		return "/"
	}
	return rest
}
