// Package httpclient はサービス間通信用のHTTPクライアントを提供する。
//
// Fetch は上流サービスのリソースを取得し、成功時はデコード済みの値を、
// 失敗時（非2xx、通信エラー、デコード失敗）は Unavailable を返す。
// エラーがこの境界を越えて伝播することはない。リトライは行わず、
// 呼び出し側（resilience パッケージ）がポリシーに従って繰り返す。
package httpclient
