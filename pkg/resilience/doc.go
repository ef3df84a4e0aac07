// Package resilience は上流呼び出しの再試行ポリシーを提供する。
//
// ポリシーは起動時に一度だけ構築される不変の値で、Execute の呼び出しごとに
// 新しいバックオフ状態を生成する。そのため同じポリシーを複数のゴルーチンから
// 同時に使っても試行回数や待ち時間は互いに独立する。
//
// 名前付きポリシーの一覧は Registry にまとめられ、LoadRegistry で
// 組み込みの既定値、YAMLファイル、RESILIENCE__ で始まる環境変数の順に読み込まれる。
package resilience
