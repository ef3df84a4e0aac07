// Package response は登録・更新・削除APIが返す共通の結果を定義する。
package response

// Response は操作の成否とメッセージ。
type Response struct {
	// Flag は操作が成功したかどうか。
	Flag bool `json:"flag"`
	// Message は利用者向けのメッセージ。
	Message string `json:"message"`
}

// Success は成功した結果を返す。
func Success(message string) Response {
	return Response{Flag: true, Message: message}
}

// Failure は失敗した結果を返す。
func Failure(message string) Response {
	return Response{Flag: false, Message: message}
}
