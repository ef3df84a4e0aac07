// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// 障害を構造化エラーに変換する FaultTranslator、Edge Routerを経由しない
// リクエストを拒否する GatewayOnly、JWT認証、リクエストID、タイムアウト、
// CORS設定など、全サービスで共通して使用するミドルウェアを含む。
//
// 推奨するチェーン順序は次のとおり。
//
//	gin.Logger() → RequestID() → FaultTranslator() → Timeout() → GatewayOnly() → ハンドラ
package middleware
