// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// リクエストIDの付与、リクエストログ、パニックリカバリ、CORS設定、
// リクエストボディのサイズ制限を含む。エラー応答はすべて{"msg": ...}形式のJSONで返す。
package middleware
