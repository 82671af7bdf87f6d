package account

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost はbcryptのデフォルトのコスト。
const DefaultBcryptCost = 10

// Hasher はパスワードのハッシュ化と照合を行う。
type Hasher interface {
	// Hash はソルト付きのハッシュを返す。同じ入力でも呼び出しごとに結果が異なる。
	Hash(plain string) (string, error)
	// Verify は平文がハッシュと一致するかを返す。
	Verify(plain, hash string) bool
}

// BcryptHasher はbcryptによるHasherの実装。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher は指定コストのBcryptHasherを生成する。
// costが0の場合はDefaultBcryptCostを使う。
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcryptのコストは%d〜%dの範囲で指定してください: %d", bcrypt.MinCost, bcrypt.MaxCost, cost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// Hash はパスワードをハッシュ化する。
func (h *BcryptHasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}
	return string(hash), nil
}

// Verify はパスワードがハッシュと一致するかを定数時間で照合する。
func (h *BcryptHasher) Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
