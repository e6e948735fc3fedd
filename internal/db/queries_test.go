package db

import (
	"context"
	"database/sql"
	"testing"

	"github.com/hpungsan/saiten/internal/errors"
)

// stringPtr returns a pointer to the given string.
func stringPtr(s string) *string {
	return &s
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedAssignment inserts an assignment with three students:
// B001 submitted, B002 not submitted, B003 submitted with a prior comment.
func seedAssignment(t *testing.T, db *sql.DB, id string) *Assignment {
	t.Helper()
	a := &Assignment{
		ID:            id,
		Name:          "演習1",
		SourceBase:    "kadai01",
		SubmissionDir: "/tmp/subs/" + id,
		Columns:       []string{"広大ID", "フルネーム", "ステータス"},
		CreatedAt:     1700000000,
	}
	students := []Student{
		{StudentID: "B001", FullName: "山田 太郎", StatusText: "提出済み - 採点対象", Submitted: true, Position: 0,
			Row: map[string]string{"広大ID": "B001", "フルネーム": "山田 太郎", "ステータス": "提出済み - 採点対象"}},
		{StudentID: "B002", FullName: "佐藤 花子", StatusText: "未提出", Submitted: false, Position: 1,
			Row: map[string]string{"広大ID": "B002"}},
		{StudentID: "B003", FullName: "鈴木 一郎", StatusText: "提出済み", Submitted: true, Position: 2,
			Feedback: stringPtr("前回のコメント"), Row: map[string]string{"広大ID": "B003"}},
	}
	if err := InsertAssignment(context.Background(), db, a, students); err != nil {
		t.Fatalf("InsertAssignment failed: %v", err)
	}
	return a
}

func TestInsertAndGetAssignment(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedAssignment(t, db, "01A")

	got, err := GetAssignment(ctx, db, "01A")
	if err != nil {
		t.Fatalf("GetAssignment failed: %v", err)
	}
	if got.Name != "演習1" || got.SourceBase != "kadai01" {
		t.Errorf("got %+v", got)
	}
	if len(got.Columns) != 3 || got.Columns[0] != "広大ID" {
		t.Errorf("Columns = %v", got.Columns)
	}
	if got.CheckedAt != nil {
		t.Errorf("CheckedAt = %v, want nil", *got.CheckedAt)
	}
}

func TestInsertAssignment_DuplicateID(t *testing.T) {
	db := openTestDB(t)
	seedAssignment(t, db, "01A")

	err := InsertAssignment(context.Background(), db, &Assignment{ID: "01A", Name: "x", Columns: []string{}}, nil)
	if err != ErrUniqueConstraint {
		t.Errorf("err = %v, want ErrUniqueConstraint", err)
	}
}

func TestInsertAssignment_DuplicateStudentRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a := &Assignment{ID: "01B", Name: "x", Columns: []string{"広大ID"}}
	students := []Student{
		{StudentID: "B001", Position: 0},
		{StudentID: "B001", Position: 1},
	}
	err := InsertAssignment(ctx, db, a, students)
	if !errors.Is(err, errors.ErrInvalidSubmission) {
		t.Fatalf("err = %v, want INVALID_SUBMISSION", err)
	}
	if _, err := GetAssignment(ctx, db, "01B"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("assignment should not exist after rollback, err = %v", err)
	}
}

func TestGetAssignment_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := GetAssignment(context.Background(), db, "nope")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestListAssignments(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedAssignment(t, db, "01A")

	list, err := ListAssignments(ctx, db)
	if err != nil {
		t.Fatalf("ListAssignments failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
	if list[0].Total != 2 {
		t.Errorf("Total = %d, want 2 submitted", list[0].Total)
	}
}

func TestListStudents_OrderAndFilter(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedAssignment(t, db, "01A")

	all, err := ListStudents(ctx, db, "01A", false)
	if err != nil {
		t.Fatalf("ListStudents failed: %v", err)
	}
	if len(all) != 3 || all[0].StudentID != "B001" || all[1].StudentID != "B002" || all[2].StudentID != "B003" {
		t.Fatalf("unexpected order: %+v", all)
	}

	submitted, err := ListStudents(ctx, db, "01A", true)
	if err != nil {
		t.Fatalf("ListStudents failed: %v", err)
	}
	if len(submitted) != 2 || submitted[0].StudentID != "B001" || submitted[1].StudentID != "B003" {
		t.Fatalf("unexpected submitted: %+v", submitted)
	}
	if submitted[1].Feedback == nil || *submitted[1].Feedback != "前回のコメント" {
		t.Errorf("Feedback = %v, want 前回のコメント", submitted[1].Feedback)
	}
	if submitted[0].Feedback != nil {
		t.Errorf("Feedback = %q, want nil", *submitted[0].Feedback)
	}
	if submitted[0].Row["ステータス"] != "提出済み - 採点対象" {
		t.Errorf("Row = %v", submitted[0].Row)
	}
}

func TestSaveFeedback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedAssignment(t, db, "01A")

	if err := SaveFeedback(ctx, db, "01A", "B001", "よくできています"); err != nil {
		t.Fatalf("SaveFeedback failed: %v", err)
	}

	s, err := GetStudent(ctx, db, "01A", "B001")
	if err != nil {
		t.Fatalf("GetStudent failed: %v", err)
	}
	if !s.Reviewed {
		t.Error("Reviewed = false, want true")
	}
	if s.Feedback == nil || *s.Feedback != "よくできています" {
		t.Errorf("Feedback = %v", s.Feedback)
	}
	if s.ReviewedAt == nil {
		t.Error("ReviewedAt = nil, want set")
	}
}

func TestSaveFeedback_EmptyMarksReviewed(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedAssignment(t, db, "01A")

	if err := SaveFeedback(ctx, db, "01A", "B001", ""); err != nil {
		t.Fatalf("SaveFeedback failed: %v", err)
	}
	s, _ := GetStudent(ctx, db, "01A", "B001")
	if !s.Reviewed || s.Feedback == nil || *s.Feedback != "" {
		t.Errorf("got reviewed=%v feedback=%v, want reviewed with empty comment", s.Reviewed, s.Feedback)
	}
}

func TestSaveFeedback_NotFound(t *testing.T) {
	db := openTestDB(t)
	seedAssignment(t, db, "01A")

	err := SaveFeedback(context.Background(), db, "01A", "B999", "x")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestApplyAutoCheck(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedAssignment(t, db, "01A")

	if err := ApplyAutoCheck(ctx, db, "01A", "B001", "ヘッダを書いてください", "missing header"); err != nil {
		t.Fatalf("ApplyAutoCheck failed: %v", err)
	}
	s, _ := GetStudent(ctx, db, "01A", "B001")
	if s.AutoFeedback != "ヘッダを書いてください" || s.AutoCheckResult != "missing header" {
		t.Errorf("got %q / %q", s.AutoFeedback, s.AutoCheckResult)
	}
}

func TestApplyAutoCheck_SkipsReviewed(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedAssignment(t, db, "01A")

	if err := SaveFeedback(ctx, db, "01A", "B001", "done"); err != nil {
		t.Fatalf("SaveFeedback failed: %v", err)
	}

	err := ApplyAutoCheck(ctx, db, "01A", "B001", "overwrite?", "r")
	if !errors.Is(err, errors.ErrAlreadyReviewed) {
		t.Fatalf("err = %v, want ALREADY_REVIEWED", err)
	}
	s, _ := GetStudent(ctx, db, "01A", "B001")
	if s.AutoFeedback != "" {
		t.Errorf("AutoFeedback = %q, want untouched", s.AutoFeedback)
	}

	err = ApplyAutoCheck(ctx, db, "01A", "B999", "x", "y")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestMarkChecked(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedAssignment(t, db, "01A")

	if err := MarkChecked(ctx, db, "01A", 1700000100); err != nil {
		t.Fatalf("MarkChecked failed: %v", err)
	}
	a, _ := GetAssignment(ctx, db, "01A")
	if a.CheckedAt == nil || *a.CheckedAt != 1700000100 {
		t.Errorf("CheckedAt = %v, want 1700000100", a.CheckedAt)
	}

	if err := MarkChecked(ctx, db, "nope", 1); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestDeleteAssignment(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedAssignment(t, db, "01A")

	if err := DeleteAssignment(ctx, db, "01A"); err != nil {
		t.Fatalf("DeleteAssignment failed: %v", err)
	}
	students, err := ListStudents(ctx, db, "01A", false)
	if err != nil {
		t.Fatalf("ListStudents failed: %v", err)
	}
	if len(students) != 0 {
		t.Errorf("students = %d, want 0", len(students))
	}
	if err := DeleteAssignment(ctx, db, "01A"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}
