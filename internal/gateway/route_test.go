package gateway

import "testing"

// TestRouteTableResolve はルーティングテーブルの最長プレフィックス一致を検証する。
func TestRouteTableResolve(t *testing.T) {
	t.Parallel()

	table := newRouteTable([]RouteConfig{
		{Prefix: "/auth", Backend: "auth-service", Protected: false},
		{Prefix: "/api/v1/users", Backend: "user-service", Protected: true},
		{Prefix: "/api/v1/users/admin", Backend: "admin-service", Protected: true},
		{Prefix: "/api/v1/maps", Backend: "map-service", Protected: true},
	})

	t.Run("プレフィックスに一致するルートが解決されること", func(t *testing.T) {
		t.Parallel()

		route, ok := table.resolve("/auth/login")
		if !ok {
			t.Fatal("ルートが解決されなかった")
		}
		if route.Backend != "auth-service" {
			t.Errorf("Backend = %q, want %q", route.Backend, "auth-service")
		}
		if route.Protected {
			t.Error("認証不要ルートがProtectedになっている")
		}
	})

	t.Run("複数のプレフィックスが一致する場合は最長のものが勝つこと", func(t *testing.T) {
		t.Parallel()

		route, ok := table.resolve("/api/v1/users/admin/42")
		if !ok {
			t.Fatal("ルートが解決されなかった")
		}
		if route.Backend != "admin-service" {
			t.Errorf("Backend = %q, want %q", route.Backend, "admin-service")
		}
	})

	t.Run("プレフィックスと完全一致するパスも解決されること", func(t *testing.T) {
		t.Parallel()

		route, ok := table.resolve("/api/v1/users")
		if !ok {
			t.Fatal("ルートが解決されなかった")
		}
		if route.Backend != "user-service" {
			t.Errorf("Backend = %q, want %q", route.Backend, "user-service")
		}
	})

	t.Run("セグメント境界を跨ぐ部分一致はマッチしないこと", func(t *testing.T) {
		t.Parallel()

		// "/api/v1/users" は "/api/v1/usersearch" にマッチしてはならない
		if _, ok := table.resolve("/api/v1/usersearch"); ok {
			t.Error("セグメント途中の部分一致でルートが解決されてしまった")
		}
	})

	t.Run("どのプレフィックスにも一致しないパスは解決されないこと", func(t *testing.T) {
		t.Parallel()

		if _, ok := table.resolve("/unknown/path"); ok {
			t.Error("未定義のパスでルートが解決されてしまった")
		}
	})

	t.Run("同一長のプレフィックスは先に宣言されたルートが勝つこと", func(t *testing.T) {
		t.Parallel()

		// 設定検証で重複プレフィックスは禁止しているが、
		// 解決ロジック自体が先勝ちであることを直接確認しておく
		dup := &routeTable{routes: []Route{
			{Prefix: "/api", Backend: "first"},
			{Prefix: "/api", Backend: "second"},
		}}
		route, ok := dup.resolve("/api/items")
		if !ok {
			t.Fatal("ルートが解決されなかった")
		}
		if route.Backend != "first" {
			t.Errorf("Backend = %q, want %q", route.Backend, "first")
		}
	})

	t.Run("ルートプレフィックス/は全パスにマッチすること", func(t *testing.T) {
		t.Parallel()

		catchAll := newRouteTable([]RouteConfig{
			{Prefix: "/", Backend: "default-service"},
		})
		route, ok := catchAll.resolve("/anything/at/all")
		if !ok {
			t.Fatal("ルートが解決されなかった")
		}
		if route.Backend != "default-service" {
			t.Errorf("Backend = %q, want %q", route.Backend, "default-service")
		}
	})
}

// TestStripPrefix はプレフィックス除去によるパス書き換えを検証する。
func TestStripPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		path   string
		prefix string
		want   string
	}{
		{name: "プレフィックスの後ろが残ること", path: "/auth/login", prefix: "/auth", want: "/login"},
		{name: "完全一致はルートパスに正規化されること", path: "/auth", prefix: "/auth", want: "/"},
		{name: "深いパスも残りが保持されること", path: "/api/v1/users/42/profile", prefix: "/api/v1/users", want: "/42/profile"},
		{name: "ルートプレフィックスはパスをそのまま返すこと", path: "/anything", prefix: "/", want: "/anything"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := stripPrefix(tt.path, tt.prefix); got != tt.want {
				t.Errorf("stripPrefix(%q, %q) = %q, want %q", tt.path, tt.prefix, got, tt.want)
			}
		})
	}
}
