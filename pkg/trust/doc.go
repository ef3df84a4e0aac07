// Package trust はEdge Routerを経由したリクエストであることを示すトラストマーカーを扱う。
//
// Edge Routerは転送するすべてのリクエストに Signer で署名済みトークンを付与し、
// 下流サービスは Verifier でそれを検証する。トークンはHS256で署名され、
// 転送先のメソッドとパス、短い有効期限に束縛されるため、
// ゲートウェイを経由しない直接アクセスや使い回しを拒否できる。
// 検証はネットワーク往復なしで完結する。
package trust
