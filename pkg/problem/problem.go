// Package problem は全サービス共通の構造化エラーレスポンスを定義する。
//
// どのサービスで発生した失敗も、境界を出る前に必ず1つの Details に変換される。
package problem

import "net/http"

// Details はクライアントに返す構造化エラーの本文。
type Details struct {
	// Title はエラーの短い分類。
	Title string `json:"title"`
	// Detail は人が読むためのメッセージ。
	Detail string `json:"detail"`
	// Status はHTTPステータスコード。
	Status int `json:"status"`
}

// 固定のエラー契約。文言はクライアントとの互換性のため変更しないこと。
var (
	// TooManyRequests はレート制限に達した場合のエラー。
	TooManyRequests = Details{Title: "Warning", Detail: "Too many request made.", Status: http.StatusTooManyRequests}
	// Unauthorized は認証されていない場合のエラー。
	Unauthorized = Details{Title: "Alert", Detail: "You are not authorized to access.", Status: http.StatusUnauthorized}
	// Forbidden は権限がない場合のエラー。
	Forbidden = Details{Title: "Out of Access", Detail: "You are not allowed to access.", Status: http.StatusForbidden}
	// Timeout は処理が制限時間を超えた場合のエラー。
	Timeout = Details{Title: "Out of time", Detail: "Request timeout... try again", Status: http.StatusRequestTimeout}
	// Internal はその他すべての想定外エラー。内部の詳細は含めない。
	Internal = Details{Title: "Error", Detail: "Sorry, internal server error occurred. Kindly try again", Status: http.StatusInternalServerError}
)

// ForStatus はレスポンスのステータスコードから書き換えるべきエラーを返す。
// 書き換え対象外のステータスの場合は false を返す。
func ForStatus(status int) (Details, bool) {
	switch status {
	case http.StatusTooManyRequests:
		return TooManyRequests, true
	case http.StatusUnauthorized:
		return Unauthorized, true
	case http.StatusForbidden:
		return Forbidden, true
	default:
		return Details{}, false
	}
}
