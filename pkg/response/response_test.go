package response

import (
	"encoding/json"
	"testing"
)

func TestResponseJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want string
	}{
		{
			name: "成功はflagがtrueになること",
			in:   Success("Order placed successfully"),
			want: `{"flag":true,"message":"Order placed successfully"}`,
		},
		{
			name: "失敗でもflagが省略されないこと",
			in:   Failure("Order already placed"),
			want: `{"flag":false,"message":"Order already placed"}`,
		},
		{
			name: "埋め込んだ場合はフィールドが同じ階層に並ぶこと",
			in: struct {
				Response
				Token string `json:"token"`
			}{Response: Success("Login successful"), Token: "jwt"},
			want: `{"flag":true,"message":"Login successful","token":"jwt"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := json.Marshal(tt.in)
			if err != nil {
				t.Fatalf("JSONエンコードに失敗: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("JSON: got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResponseDecode(t *testing.T) {
	t.Parallel()

	var got Response
	if err := json.Unmarshal([]byte(`{"flag":false,"message":"No product detected in database"}`), &got); err != nil {
		t.Fatalf("JSONデコードに失敗: %v", err)
	}
	if got != Failure("No product detected in database") {
		t.Errorf("Response: got %+v", got)
	}
}
