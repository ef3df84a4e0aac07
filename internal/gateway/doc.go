// Package gateway はEdge Routerの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線として
// 機能する。ユーザーJWTとロールを検証し、クライアントごとのレート制限をかけたうえで
// 認証・商品・注文の各サービスへリクエストを転送する。転送するリクエストには
// 必ずトラストマーカーを付与し、付与できない場合は転送しない。
package gateway
