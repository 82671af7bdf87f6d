// Package waste は学校が投稿する食品廃棄記録の保存・検索・集計を扱う。
package waste

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// AnalysisWindow は集計対象とする記録の件数。
const AnalysisWindow = 7

var (
	// ErrNotFound は該当する廃棄記録が存在しないことを表す。
	ErrNotFound = errors.New("waste: entry not found")
	// ErrInvalidEntry は廃棄記録の入力が不正であることを表す。
	ErrInvalidEntry = errors.New("waste: invalid entry")
)

// School は廃棄記録を投稿した学校の概要。
type School struct {
	ID            string
	InstituteName string
	ContactNumber string
	Email         string
	Address       string
}

// Entry は1件の廃棄記録。
type Entry struct {
	ID string
	// SchoolID は投稿した学校アカウントのID。
	SchoolID string
	// School は投稿した学校の概要。Storeから取得した場合のみ設定される。
	School *School
	Menu   string
	// Weight は廃棄量（kg）。
	Weight float64
	// Date は廃棄が発生した日。
	Date time.Time
	// ImageURL は添付画像の公開URL。画像が無い場合は空。
	ImageURL string
	// ImageID はメディアホスト上の画像の識別子。
	ImageID string
	// PostedAt は投稿日時。
	PostedAt time.Time
}

// Draft は新しく登録する廃棄記録。
type Draft struct {
	SchoolID string
	Menu     string
	Weight   float64
	Date     time.Time
	ImageURL string
	ImageID  string
}

// Validate はDraftの必須項目と値の範囲を検査する。
func (d Draft) Validate() error {
	switch {
	case d.SchoolID == "":
		return fmt.Errorf("%w: schoolは必須です", ErrInvalidEntry)
	case strings.TrimSpace(d.Menu) == "":
		return fmt.Errorf("%w: menuは必須です", ErrInvalidEntry)
	case d.Weight < 0:
		return fmt.Errorf("%w: weightは0以上で指定してください", ErrInvalidEntry)
	case d.Date.IsZero():
		return fmt.Errorf("%w: dateは必須です", ErrInvalidEntry)
	}
	return nil
}

// Filter は農家向け検索の条件。ゼロ値の項目は条件に含めない。
type Filter struct {
	// WeightMin とWeightMax は廃棄量の下限と上限（両端を含む）。
	WeightMin *float64
	WeightMax *float64
	// Menu はメニュー名に対する大文字小文字を区別しない正規表現。
	// 正規表現として不正な場合は文字列として部分一致させる。
	Menu string
	// Date はその日（UTC）の0時から24時間に含まれる記録に絞り込む。
	Date *time.Time
	// SchoolName は学校名に対する大文字小文字を区別しない部分一致。
	SchoolName string
}

// menuPattern はMenuを大文字小文字を区別しない正規表現に変換する。
func (f Filter) menuPattern() *regexp.Regexp {
	if f.Menu == "" {
		return nil
	}
	re, err := regexp.Compile("(?i)" + f.Menu)
	if err != nil {
		return regexp.MustCompile("(?i)" + regexp.QuoteMeta(f.Menu))
	}
	return re
}

// dayRange はDateを含むUTCの1日の範囲[start, end)を返す。
func dayRange(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// ParseDate は"2006-01-02"またはRFC3339形式の日付を解釈する。
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: 日付はYYYY-MM-DDまたはRFC3339形式で指定してください: %q", ErrInvalidEntry, s)
	}
	return t.UTC(), nil
}
