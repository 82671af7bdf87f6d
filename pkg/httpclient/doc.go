// Package httpclient は外部のHTTP APIを呼び出すクライアントを提供する。
//
// フォームエンコードのPOSTとJSONレスポンスのデコードを行い、
// 2xx以外の応答は*StatusErrorとして返す。メディアホスト（Cloudinary）との通信に使う。
package httpclient
