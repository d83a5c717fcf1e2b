package attendance

import (
	"context"
	"reflect"
	"sort"
	"testing"
	"time"

	"classroll/internal/apperr"
	"classroll/internal/policy"
)

type sheetKey struct {
	student string
	class   string
	day     string
}

// fakeStore applies sheets atomically against an in-memory map, mirroring
// the transactional upsert of the Postgres repository.
type fakeStore struct {
	records map[sheetKey]Record
	fail    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[sheetKey]Record)}
}

func (f *fakeStore) UpsertSheet(_ context.Context, classID string, day time.Time, entries []Entry, markedBy string) (int, error) {
	if f.fail {
		return 0, apperr.New(apperr.KindStorage, "datastore unreachable")
	}
	now := time.Now().UTC()
	for _, e := range entries {
		key := sheetKey{student: e.StudentID, class: classID, day: day.Format("2006-01-02")}
		f.records[key] = Record{
			ID:        key.student + "/" + key.class + "/" + key.day,
			StudentID: e.StudentID,
			ClassID:   classID,
			Day:       day,
			Status:    e.Status,
			MarkedBy:  markedBy,
			MarkedAt:  now,
		}
	}
	return len(entries), nil
}

func (f *fakeStore) List(_ context.Context, fl Filter) ([]Record, error) {
	var res []Record
	for _, rec := range f.records {
		if fl.StudentID != "" && rec.StudentID != fl.StudentID {
			continue
		}
		if fl.ClassID != "" && rec.ClassID != fl.ClassID {
			continue
		}
		res = append(res, rec)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].Day.Equal(res[j].Day) {
			return res[i].Day.After(res[j].Day)
		}
		return res[i].ClassID < res[j].ClassID
	})
	return res, nil
}

type fakeRoster struct {
	classes map[string]map[string]bool
}

func (f *fakeRoster) GetRoster(_ context.Context, classID string) (map[string]bool, error) {
	members, ok := f.classes[classID]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "class %s not found", classID)
	}
	return members, nil
}

var (
	teacher = policy.Principal{ID: "tch-1", Role: policy.RoleTeacher}
	admin   = policy.Principal{ID: "adm-1", Role: policy.RoleAdmin}
	student = policy.Principal{ID: "stu-1", Role: policy.RoleStudent}
)

func roster() *fakeRoster {
	return &fakeRoster{classes: map[string]map[string]bool{
		"cls-1": {"stu-1": true, "stu-2": true, "stu-3": true},
		"cls-2": {"stu-1": true},
	}}
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSaveSheet(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		p        policy.Principal
		classID  string
		entries  []Entry
		wantKind apperr.Kind
		wantN    int
	}{
		{
			name:    "teacher saves sheet",
			p:       teacher,
			classID: "cls-1",
			entries: []Entry{{StudentID: "stu-1", Status: StatusPresent}, {StudentID: "stu-2", Status: StatusAbsent}},
			wantN:   2,
		},
		{
			name:    "admin saves sheet",
			p:       admin,
			classID: "cls-2",
			entries: []Entry{{StudentID: "stu-1", Status: StatusPresent}},
			wantN:   1,
		},
		{
			name:     "student forbidden",
			p:        student,
			classID:  "cls-1",
			entries:  []Entry{{StudentID: "stu-1", Status: StatusPresent}},
			wantKind: apperr.KindForbidden,
		},
		{
			name:     "unknown student fails whole batch",
			p:        teacher,
			classID:  "cls-1",
			entries:  []Entry{{StudentID: "stu-1", Status: StatusPresent}, {StudentID: "stu-99", Status: StatusPresent}},
			wantKind: apperr.KindInvalidReference,
		},
		{
			name:     "unknown class",
			p:        teacher,
			classID:  "cls-99",
			entries:  []Entry{{StudentID: "stu-1", Status: StatusPresent}},
			wantKind: apperr.KindInvalidReference,
		},
		{
			name:     "bad status",
			p:        teacher,
			classID:  "cls-1",
			entries:  []Entry{{StudentID: "stu-1", Status: "Late"}},
			wantKind: apperr.KindValidation,
		},
		{
			name:     "duplicate student in sheet",
			p:        teacher,
			classID:  "cls-1",
			entries:  []Entry{{StudentID: "stu-1", Status: StatusPresent}, {StudentID: "stu-1", Status: StatusAbsent}},
			wantKind: apperr.KindValidation,
		},
		{
			name:     "empty sheet",
			p:        teacher,
			classID:  "cls-1",
			entries:  nil,
			wantKind: apperr.KindValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			svc := NewService(store, roster())
			n, err := svc.SaveSheet(ctx, tt.p, tt.classID, day("2024-07-24"), tt.entries)
			if tt.wantKind != "" {
				if !apperr.Is(err, tt.wantKind) {
					t.Fatalf("SaveSheet() error = %v, want kind %s", err, tt.wantKind)
				}
				if len(store.records) != 0 {
					t.Errorf("failed batch left %d records behind", len(store.records))
				}
				return
			}
			if err != nil {
				t.Fatalf("SaveSheet() error = %v", err)
			}
			if n != tt.wantN {
				t.Errorf("written = %d, want %d", n, tt.wantN)
			}
		})
	}
}

func TestSaveSheetIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(store, roster())

	entries := []Entry{{StudentID: "stu-1", Status: StatusPresent}, {StudentID: "stu-2", Status: StatusAbsent}}
	if _, err := svc.SaveSheet(ctx, teacher, "cls-1", day("2024-07-24"), entries); err != nil {
		t.Fatalf("first SaveSheet() error = %v", err)
	}
	first := make(map[sheetKey]Status, len(store.records))
	for k, rec := range store.records {
		first[k] = rec.Status
	}

	if _, err := svc.SaveSheet(ctx, teacher, "cls-1", day("2024-07-24"), entries); err != nil {
		t.Fatalf("second SaveSheet() error = %v", err)
	}
	second := make(map[sheetKey]Status, len(store.records))
	for k, rec := range store.records {
		second[k] = rec.Status
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeat save changed state: %v vs %v", first, second)
	}
	if len(store.records) != 2 {
		t.Errorf("got %d records, want 2 (no duplicates)", len(store.records))
	}
}

func TestSaveSheetOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(store, roster())

	if _, err := svc.SaveSheet(ctx, teacher, "cls-1", day("2024-07-24"), []Entry{{StudentID: "stu-1", Status: StatusAbsent}}); err != nil {
		t.Fatalf("SaveSheet() error = %v", err)
	}
	if _, err := svc.SaveSheet(ctx, admin, "cls-1", day("2024-07-24"), []Entry{{StudentID: "stu-1", Status: StatusPresent}}); err != nil {
		t.Fatalf("SaveSheet() error = %v", err)
	}

	key := sheetKey{student: "stu-1", class: "cls-1", day: "2024-07-24"}
	rec := store.records[key]
	if rec.Status != StatusPresent {
		t.Errorf("status = %s, want Present after overwrite", rec.Status)
	}
	if rec.MarkedBy != admin.ID {
		t.Errorf("marked by = %s, want %s", rec.MarkedBy, admin.ID)
	}
	if len(store.records) != 1 {
		t.Errorf("got %d records, want 1", len(store.records))
	}
}

func TestSaveSheetStorageFailure(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.fail = true
	svc := NewService(store, roster())

	_, err := svc.SaveSheet(ctx, teacher, "cls-1", day("2024-07-24"), []Entry{{StudentID: "stu-1", Status: StatusPresent}})
	if !apperr.Is(err, apperr.KindStorage) {
		t.Fatalf("error = %v, want storage", err)
	}
	if len(store.records) != 0 {
		t.Errorf("failed save left %d records behind", len(store.records))
	}
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(store, roster())

	seed := []struct {
		class string
		date  string
		e     []Entry
	}{
		{class: "cls-1", date: "2024-07-22", e: []Entry{{StudentID: "stu-1", Status: StatusPresent}, {StudentID: "stu-2", Status: StatusPresent}}},
		{class: "cls-2", date: "2024-07-23", e: []Entry{{StudentID: "stu-1", Status: StatusAbsent}}},
		{class: "cls-1", date: "2024-07-24", e: []Entry{{StudentID: "stu-1", Status: StatusPresent}}},
	}
	for _, s := range seed {
		if _, err := svc.SaveSheet(ctx, teacher, s.class, day(s.date), s.e); err != nil {
			t.Fatalf("seed SaveSheet() error = %v", err)
		}
	}

	t.Run("admin sees whole class ordered by day desc", func(t *testing.T) {
		records, err := svc.Query(ctx, admin, Filter{ClassID: "cls-1"})
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("got %d records, want 3", len(records))
		}
		for i := 1; i < len(records); i++ {
			if records[i].Day.After(records[i-1].Day) {
				t.Errorf("records out of order at %d", i)
			}
		}
	})

	t.Run("student restricted to self", func(t *testing.T) {
		records, err := svc.Query(ctx, student, Filter{})
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		for _, rec := range records {
			if rec.StudentID != student.ID {
				t.Errorf("leaked record for %s", rec.StudentID)
			}
		}
		if len(records) != 3 {
			t.Errorf("got %d records, want 3", len(records))
		}
	})

	t.Run("student querying other student denied", func(t *testing.T) {
		if _, err := svc.Query(ctx, student, Filter{StudentID: "stu-2"}); !apperr.Is(err, apperr.KindForbidden) {
			t.Fatalf("error = %v, want forbidden", err)
		}
	})

	t.Run("student querying own id allowed", func(t *testing.T) {
		records, err := svc.Query(ctx, student, Filter{StudentID: student.ID, ClassID: "cls-2"})
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if len(records) != 1 {
			t.Errorf("got %d records, want 1", len(records))
		}
	})
}

func TestDay(t *testing.T) {
	in := time.Date(2024, 7, 24, 18, 30, 12, 999, time.FixedZone("X", 3*3600))
	got := Day(in)
	want := time.Date(2024, 7, 24, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Day() = %v, want %v", got, want)
	}
}
