package availability

import (
	"reflect"
	"testing"
	"time"

	"github.com/hitoshi/bookman/internal/model"
)

var saoPaulo = mustLoadLocation("America/Sao_Paulo")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// 2026年9月の月曜日: 7, 14, 21, 28
const septMonday = "2026-09-07"

func mondayRule() *model.AvailabilityRule {
	return &model.AvailabilityRule{
		ID:             "rule-1",
		ProfessionalID: "prof-1",
		DayOfWeek:      1,
		StartTime:      "09:00",
		EndTime:        "12:00",
	}
}

// pastNow は対象月より前の時刻（過去フィルタが効かない基準時刻）。
var pastNow = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

// テンプレートだけの場合に時間単位のスロットが生成されることを検証
func TestComputeOpenSlots_TemplateOnly(t *testing.T) {
	got := ComputeOpenSlots(
		[]*model.AvailabilityRule{mondayRule()},
		nil, nil,
		2026, time.September, saoPaulo, time.Hour, pastNow,
	)

	want := []string{"09:00", "10:00", "11:00"}
	if !reflect.DeepEqual(got[septMonday], want) {
		t.Errorf("slots[%s] = %v, want %v", septMonday, got[septMonday], want)
	}

	// 月曜4回分のみが含まれる
	if len(got) != 4 {
		t.Errorf("len(result) = %d, want 4", len(got))
	}

	// 半開区間: 終了時刻ちょうどに始まるスロットは含まれない
	for _, slot := range got[septMonday] {
		if slot == "12:00" {
			t.Error("slot at window end must be excluded")
		}
	}
}

// 部分例外がスロットを取り除くことを検証
func TestComputeOpenSlots_PartialException(t *testing.T) {
	got := ComputeOpenSlots(
		[]*model.AvailabilityRule{mondayRule()},
		[]*model.AvailabilityException{{
			ID:             "ex-1",
			ProfessionalID: "prof-1",
			ExceptionDate:  septMonday,
			StartTime:      "10:00",
			EndTime:        "11:00",
		}},
		nil,
		2026, time.September, saoPaulo, time.Hour, pastNow,
	)

	want := []string{"09:00", "11:00"}
	if !reflect.DeepEqual(got[septMonday], want) {
		t.Errorf("slots[%s] = %v, want %v", septMonday, got[septMonday], want)
	}
}

// 終日例外が日付ごと結果から除外することを検証
func TestComputeOpenSlots_FullDayException(t *testing.T) {
	got := ComputeOpenSlots(
		[]*model.AvailabilityRule{mondayRule()},
		[]*model.AvailabilityException{{
			ID:             "ex-1",
			ProfessionalID: "prof-1",
			ExceptionDate:  septMonday,
		}},
		nil,
		2026, time.September, saoPaulo, time.Hour, pastNow,
	)

	if _, ok := got[septMonday]; ok {
		t.Errorf("date %s must be omitted entirely", septMonday)
	}
	// 他の月曜日は残る
	if len(got) != 3 {
		t.Errorf("len(result) = %d, want 3", len(got))
	}
}

// 既存予約の開始時刻と一致するスロットが除外されることを検証
func TestComputeOpenSlots_BookedSlot(t *testing.T) {
	booked := time.Date(2026, 9, 7, 9, 0, 0, 0, saoPaulo)
	got := ComputeOpenSlots(
		[]*model.AvailabilityRule{mondayRule()},
		nil,
		[]time.Time{booked},
		2026, time.September, saoPaulo, time.Hour, pastNow,
	)

	want := []string{"10:00", "11:00"}
	if !reflect.DeepEqual(got[septMonday], want) {
		t.Errorf("slots[%s] = %v, want %v", septMonday, got[septMonday], want)
	}
}

// UTCで保存された予約時刻が所有者タイムゾーンで突合されることを検証
func TestComputeOpenSlots_BookedSlotInUTC(t *testing.T) {
	// 2026-09-07 09:00 America/Sao_Paulo (-03:00) = 12:00 UTC
	booked := time.Date(2026, 9, 7, 12, 0, 0, 0, time.UTC)
	got := ComputeOpenSlots(
		[]*model.AvailabilityRule{mondayRule()},
		nil,
		[]time.Time{booked},
		2026, time.September, saoPaulo, time.Hour, pastNow,
	)

	want := []string{"10:00", "11:00"}
	if !reflect.DeepEqual(got[septMonday], want) {
		t.Errorf("slots[%s] = %v, want %v", septMonday, got[septMonday], want)
	}
}

// 現在時刻以前のスロットが除外されることを検証
func TestComputeOpenSlots_PastSlotsDropped(t *testing.T) {
	// 9月7日の10:30に照会: 09:00と10:00は過去、11:00のみ残る
	now := time.Date(2026, 9, 7, 10, 30, 0, 0, saoPaulo)
	got := ComputeOpenSlots(
		[]*model.AvailabilityRule{mondayRule()},
		nil, nil,
		2026, time.September, saoPaulo, time.Hour, now,
	)

	want := []string{"11:00"}
	if !reflect.DeepEqual(got[septMonday], want) {
		t.Errorf("slots[%s] = %v, want %v", septMonday, got[septMonday], want)
	}
}

// テンプレートが無い曜日と空きゼロの日付が結果に現れないことを検証
func TestComputeOpenSlots_EmptyDatesOmitted(t *testing.T) {
	// 全月曜を予約で埋める
	var booked []time.Time
	for _, day := range []int{7, 14, 21, 28} {
		for _, hour := range []int{9, 10, 11} {
			booked = append(booked, time.Date(2026, 9, day, hour, 0, 0, 0, saoPaulo))
		}
	}
	got := ComputeOpenSlots(
		[]*model.AvailabilityRule{mondayRule()},
		nil, booked,
		2026, time.September, saoPaulo, time.Hour, pastNow,
	)

	if len(got) != 0 {
		t.Errorf("result = %v, want empty map", got)
	}
}

// 同一曜日の複数テンプレートが区間の和として扱われることを検証
func TestComputeOpenSlots_MultipleWindowsSameDay(t *testing.T) {
	rules := []*model.AvailabilityRule{
		mondayRule(),
		{ID: "rule-2", ProfessionalID: "prof-1", DayOfWeek: 1, StartTime: "14:00", EndTime: "16:00"},
	}
	got := ComputeOpenSlots(rules, nil, nil, 2026, time.September, saoPaulo, time.Hour, pastNow)

	want := []string{"09:00", "10:00", "11:00", "14:00", "15:00"}
	if !reflect.DeepEqual(got[septMonday], want) {
		t.Errorf("slots[%s] = %v, want %v", septMonday, got[septMonday], want)
	}
}

// 開始時刻が窓内なら終了が窓をはみ出すスロットも生成されることを検証
func TestComputeOpenSlots_SlotStartingInsideWindowKept(t *testing.T) {
	rules := []*model.AvailabilityRule{
		{ID: "rule-1", ProfessionalID: "prof-1", DayOfWeek: 1, StartTime: "09:00", EndTime: "10:30"},
	}
	got := ComputeOpenSlots(rules, nil, nil, 2026, time.September, saoPaulo, time.Hour, pastNow)

	// 10:00開始は10:30を超えて終わるが、開始時刻が[09:00, 10:30)に入るため含まれる
	want := []string{"09:00", "10:00"}
	if !reflect.DeepEqual(got[septMonday], want) {
		t.Errorf("slots[%s] = %v, want %v", septMonday, got[septMonday], want)
	}
}

// 部分例外はスロットの開始時刻が例外窓に入る場合のみ塞ぐことを検証
func TestComputeOpenSlots_ExceptionBlocksByStartTimeOnly(t *testing.T) {
	got := ComputeOpenSlots(
		[]*model.AvailabilityRule{mondayRule()},
		[]*model.AvailabilityException{{
			ID:             "ex-1",
			ProfessionalID: "prof-1",
			ExceptionDate:  septMonday,
			StartTime:      "10:30",
			EndTime:        "11:00",
		}},
		nil,
		2026, time.September, saoPaulo, time.Hour, pastNow,
	)

	// 10:00開始は例外窓[10:30, 11:00)に開始時刻が入らないため生き残る
	want := []string{"09:00", "10:00", "11:00"}
	if !reflect.DeepEqual(got[septMonday], want) {
		t.Errorf("slots[%s] = %v, want %v", septMonday, got[septMonday], want)
	}
}

// ISO曜日変換の正準性を検証
func TestISOWeekday(t *testing.T) {
	tests := []struct {
		d    time.Weekday
		want int
	}{
		{time.Monday, 1},
		{time.Saturday, 6},
		{time.Sunday, 7},
	}
	for _, tt := range tests {
		if got := model.ISOWeekday(tt.d); got != tt.want {
			t.Errorf("ISOWeekday(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}
