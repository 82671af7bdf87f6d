package waste

// MenuTotal はメニューごとの廃棄量の合計。
type MenuTotal struct {
	Menu        string
	TotalWeight float64
}

// Analyze はメニューごとに廃棄量を合計する。
// 結果はentriesの中で各メニューが最初に現れた順に並ぶ。
func Analyze(entries []Entry) []MenuTotal {
	totals := make([]MenuTotal, 0, len(entries))
	index := make(map[string]int, len(entries))
	for _, e := range entries {
		i, ok := index[e.Menu]
		if !ok {
			index[e.Menu] = len(totals)
			totals = append(totals, MenuTotal{Menu: e.Menu, TotalWeight: e.Weight})
			continue
		}
		totals[i].TotalWeight += e.Weight
	}
	return totals
}
