// Package auth は利用者の登録、ログイン、利用者情報の参照を提供する認証サービスを実装する。
//
// ログインに成功するとユーザーJWTを発行する。ゲートウェイはこのJWTを検証して
// 保護されたルートへの転送を許可する。/api/v1 以下はゲートウェイ経由の呼び出しのみ受け付ける。
package auth
