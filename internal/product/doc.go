// Package product は商品カタログの参照と管理を行う商品サービスを実装する。
// 価格は shopspring/decimal で保持し、浮動小数点の誤差を持ち込まない。
package product
