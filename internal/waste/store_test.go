package waste

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/foodhero/internal/account"
	"github.com/nao1215/foodhero/internal/store"
)

// stepClock は呼ばれるたびに1秒進む時計。
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// testEnv はテスト用のStoreと学校アカウントの作成手段をまとめたもの。
type testEnv struct {
	store    *Store
	accounts *account.Store
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := store.Open(t.Context(), filepath.Join(t.TempDir(), "waste.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := &stepClock{now: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)}
	return &testEnv{
		store:    NewStore(db, WithClock(clock.Now)),
		accounts: account.NewStore(db),
	}
}

// createSchool はテスト用の学校アカウントを登録するヘルパー関数。
func (e *testEnv) createSchool(t *testing.T, id, name string) {
	t.Helper()

	identity, err := account.NewIdentity(id, id+"@example.com", "076000000",
		account.SchoolProfile{InstituteName: name, Address: "Phuket"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, e.accounts.Create(t.Context(), identity, "hash"))
}

func (e *testEnv) add(t *testing.T, schoolID, menu string, weight float64, date string) Entry {
	t.Helper()

	d, err := ParseDate(date)
	require.NoError(t, err)
	entry, err := e.store.Create(t.Context(), Draft{SchoolID: schoolID, Menu: menu, Weight: weight, Date: d})
	require.NoError(t, err)
	return entry
}

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func ptr[T any](v T) *T { return &v }

// TestStore_CreateAndFindByID は登録と取得を検証する。
func TestStore_CreateAndFindByID(t *testing.T) {
	t.Parallel()

	t.Run("登録した記録を学校の概要付きで取得できること", func(t *testing.T) {
		t.Parallel()

		env := setupTestEnv(t)
		env.createSchool(t, "school-a", "Kajonkiet School")

		created, err := env.store.Create(t.Context(), Draft{
			SchoolID: "school-a",
			Menu:     "Khao Man Gai",
			Weight:   2.75,
			Date:     time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC),
			ImageURL: "https://cdn.example.com/a.png",
			ImageID:  "waste/a.png",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Nil(t, created.School)
		assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 1, 0, time.UTC), created.PostedAt)

		got, err := env.store.FindByID(t.Context(), created.ID)
		require.NoError(t, err)
		require.NotNil(t, got.School)
		assert.Equal(t, School{
			ID:            "school-a",
			InstituteName: "Kajonkiet School",
			ContactNumber: "076000000",
			Email:         "school-a@example.com",
			Address:       "Phuket",
		}, *got.School)

		got.School = nil
		assert.Equal(t, created, got)
	})

	t.Run("存在しない学校IDでは登録できないこと", func(t *testing.T) {
		t.Parallel()

		env := setupTestEnv(t)
		_, err := env.store.Create(t.Context(), Draft{SchoolID: "ghost", Menu: "m", Weight: 1, Date: time.Now()})
		require.Error(t, err)
	})

	t.Run("不正な入力はErrInvalidEntryになること", func(t *testing.T) {
		t.Parallel()

		env := setupTestEnv(t)
		_, err := env.store.Create(t.Context(), Draft{SchoolID: "s", Menu: "", Weight: 1, Date: time.Now()})
		require.ErrorIs(t, err, ErrInvalidEntry)
	})

	t.Run("存在しないIDはErrNotFoundになること", func(t *testing.T) {
		t.Parallel()

		env := setupTestEnv(t)
		_, err := env.store.FindByID(t.Context(), "missing")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

// TestStore_DeleteByID は削除を検証する。
func TestStore_DeleteByID(t *testing.T) {
	t.Parallel()

	env := setupTestEnv(t)
	env.createSchool(t, "school-a", "A School")
	entry := env.add(t, "school-a", "Rice", 1, "2026-03-01")

	require.NoError(t, env.store.DeleteByID(t.Context(), entry.ID))

	_, err := env.store.FindByID(t.Context(), entry.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, env.store.DeleteByID(t.Context(), entry.ID), ErrNotFound)
}

// TestStore_ListBySchool は学校ごとの一覧を検証する。
func TestStore_ListBySchool(t *testing.T) {
	t.Parallel()

	env := setupTestEnv(t)
	env.createSchool(t, "school-a", "A School")
	env.createSchool(t, "school-b", "B School")

	var want []string
	dates := []string{"2026-03-09", "2026-03-01", "2026-03-05", "2026-03-03", "2026-03-08", "2026-03-02", "2026-03-07", "2026-03-04", "2026-03-06"}
	byDate := map[string]string{}
	for _, d := range dates {
		byDate[d] = env.add(t, "school-a", "Menu "+d, 1, d).ID
	}
	env.add(t, "school-b", "Other", 1, "2026-02-01")
	for _, d := range []string{"2026-03-01", "2026-03-02", "2026-03-03", "2026-03-04", "2026-03-05", "2026-03-06", "2026-03-07"} {
		want = append(want, byDate[d])
	}

	got, err := env.store.ListBySchool(t.Context(), "school-a", AnalysisWindow)
	require.NoError(t, err)
	assert.Equal(t, want, ids(got))
}

// TestStore_Find は検索条件を検証する。
func TestStore_Find(t *testing.T) {
	t.Parallel()

	env := setupTestEnv(t)
	env.createSchool(t, "school-a", "Phuket Wittayalai")
	env.createSchool(t, "school-b", "Satree Phuket")
	env.createSchool(t, "school-c", "Kathu Pittaya")

	rice := env.add(t, "school-a", "Fried Rice", 2.0, "2026-03-01")
	curry := env.add(t, "school-b", "Green Curry(large)", 5.0, "2026-03-01T23:30:00Z")
	noodle := env.add(t, "school-c", "Noodle Soup", 0.5, "2026-03-02")
	riceSoup := env.add(t, "school-b", "Rice Soup", 8.0, "2026-03-03")

	tests := []struct {
		name   string
		filter Filter
		want   []Entry
	}{
		{name: "条件なしは投稿の新しい順に全件", filter: Filter{}, want: []Entry{riceSoup, noodle, curry, rice}},
		{name: "下限は境界値を含む", filter: Filter{WeightMin: ptr(5.0)}, want: []Entry{riceSoup, curry}},
		{name: "上限は境界値を含む", filter: Filter{WeightMax: ptr(2.0)}, want: []Entry{noodle, rice}},
		{name: "下限と上限", filter: Filter{WeightMin: ptr(1.0), WeightMax: ptr(6.0)}, want: []Entry{curry, rice}},
		{name: "メニューは大文字小文字を区別しない", filter: Filter{Menu: "RICE"}, want: []Entry{riceSoup, rice}},
		{name: "不正な正規表現は文字列として扱う", filter: Filter{Menu: "curry("}, want: []Entry{curry}},
		{name: "日付はその日全体に一致する", filter: Filter{Date: ptr(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))}, want: []Entry{curry, rice}},
		{name: "学校名は部分一致で大文字小文字を区別しない", filter: Filter{SchoolName: "phuket"}, want: []Entry{riceSoup, curry, rice}},
		{name: "複数条件はすべて満たすもの", filter: Filter{SchoolName: "satree", Menu: "soup"}, want: []Entry{riceSoup}},
		{name: "一致なしは空", filter: Filter{SchoolName: "nowhere"}, want: []Entry{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := env.store.Find(t.Context(), tt.filter)
			require.NoError(t, err)
			assert.Equal(t, ids(tt.want), ids(got))
		})
	}
}
