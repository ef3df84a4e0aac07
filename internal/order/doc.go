// Package order は注文の管理と、注文詳細の集約を行う注文サービスを実装する。
//
// 注文詳細は、ローカルの注文に商品サービスの商品情報と認証サービスの利用者情報を
// 組み合わせて作る。2つの上流呼び出しは並行に行い、それぞれ同じ再試行ポリシーで
// 独立に再試行する。どちらかが得られなければ部分的な結果は返さない。
package order
