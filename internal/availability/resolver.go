// Package availability は週次テンプレート・例外・既存予約から
// 月単位の空き時間を解決するドメインロジックを提供する。
package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/hitoshi/bookman/internal/model"
)

// minuteOfDay は"HH:MM"を0時からの経過分に変換する。不正な形式はエラーを返す。
func minuteOfDay(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return h*60 + m, nil
}

// span は1日の中の半開区間 [start, end) を経過分で表す。
type span struct {
	start int
	end   int
}

// ComputeOpenSlots は指定月の空き時間を日付ごとに計算する。
//
// 各日についてテンプレートの時間帯からslotDuration刻みのスロットを生成し、
// 例外・既存予約・過去のスロットを取り除く。すべての区間は半開区間 [start, end)
// として扱い、テンプレートの終了時刻ちょうどに始まるスロットは含まれない。
//
// 終日例外のある日付と空きがひとつもない日付は結果から除外される。
// 戻り値のキーは"YYYY-MM-DD"、値は昇順の"HH:MM"スライス。
func ComputeOpenSlots(
	rules []*model.AvailabilityRule,
	exceptions []*model.AvailabilityException,
	bookedStarts []time.Time,
	year int,
	month time.Month,
	loc *time.Location,
	slotDuration time.Duration,
	now time.Time,
) map[string][]string {
	slotMin := int(slotDuration.Minutes())
	if slotMin <= 0 {
		slotMin = 60
	}

	// テンプレートを曜日ごとにまとめる
	rulesByDay := make(map[int][]span)
	for _, rule := range rules {
		start, err := minuteOfDay(rule.StartTime)
		if err != nil {
			continue
		}
		end, err := minuteOfDay(rule.EndTime)
		if err != nil || end <= start {
			continue
		}
		rulesByDay[rule.DayOfWeek] = append(rulesByDay[rule.DayOfWeek], span{start, end})
	}

	// 例外を日付ごとにまとめる。終日例外はその日付全体を無効化する
	fullDayBlocked := make(map[string]bool)
	blocksByDate := make(map[string][]span)
	for _, e := range exceptions {
		if e.AllDay() {
			fullDayBlocked[e.ExceptionDate] = true
			continue
		}
		start, err := minuteOfDay(e.StartTime)
		if err != nil {
			continue
		}
		end, err := minuteOfDay(e.EndTime)
		if err != nil || end <= start {
			continue
		}
		blocksByDate[e.ExceptionDate] = append(blocksByDate[e.ExceptionDate], span{start, end})
	}

	// 既存予約の開始時刻を所有者タイムゾーンの日付+分で索引化する
	booked := make(map[string]map[int]bool)
	for _, t := range bookedStarts {
		local := t.In(loc)
		date := local.Format("2006-01-02")
		if booked[date] == nil {
			booked[date] = make(map[int]bool)
		}
		booked[date][local.Hour()*60+local.Minute()] = true
	}

	result := make(map[string][]string)

	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	daysInMonth := firstOfMonth.AddDate(0, 1, -1).Day()

	for day := 1; day <= daysInMonth; day++ {
		date := time.Date(year, month, day, 0, 0, 0, 0, loc)
		dateStr := date.Format("2006-01-02")

		if fullDayBlocked[dateStr] {
			continue
		}

		windows := rulesByDay[model.ISOWeekday(date.Weekday())]
		if len(windows) == 0 {
			continue
		}

		blocks := blocksByDate[dateStr]
		bookedMinutes := booked[dateStr]

		seen := make(map[int]bool)
		var slots []int
		for _, w := range windows {
			// 半開区間[start, end): 開始時刻が窓内にあるスロットをすべて生成する
			for m := w.start; m < w.end; m += slotMin {
				if seen[m] {
					continue
				}
				seen[m] = true

				// 部分例外は開始時刻が例外窓[start, end)に入るスロットのみ塞ぐ
				blocked := false
				for _, b := range blocks {
					if m >= b.start && m < b.end {
						blocked = true
						break
					}
				}
				if blocked {
					continue
				}

				if bookedMinutes[m] {
					continue
				}

				// 過去のスロットは除外
				slotTime := time.Date(year, month, day, m/60, m%60, 0, 0, loc)
				if !slotTime.After(now) {
					continue
				}

				slots = append(slots, m)
			}
		}

		if len(slots) == 0 {
			continue
		}
		sort.Ints(slots)

		formatted := make([]string, len(slots))
		for i, m := range slots {
			formatted[i] = fmt.Sprintf("%02d:%02d", m/60, m%60)
		}
		result[dateStr] = formatted
	}

	return result
}
