package entities

import "testing"

func testClass() *Class {
	return &Class{Name: "Post", Fields: []string{"ThreadID", "Title"}}
}

func TestRecord_NewAndLoad(t *testing.T) {
	class := testClass()

	phantom := NewRecord(class)
	if !phantom.IsNew() {
		t.Error("NewRecord() should create a phantom record")
	}
	if phantom.ID() != nil {
		t.Errorf("phantom ID = %v, want nil", phantom.ID())
	}

	loaded := LoadRecord(class, map[string]interface{}{"ID": int64(3), "Title": "hello"})
	if loaded.IsNew() {
		t.Error("LoadRecord() should create a persisted record")
	}
	if loaded.IsDirty() {
		t.Error("loaded record should not be dirty")
	}
	if loaded.Get("Title") != "hello" {
		t.Errorf("Get(Title) = %v, want hello", loaded.Get("Title"))
	}
}

func TestRecord_SetMarksDirtyAndRunsHooks(t *testing.T) {
	rec := LoadRecord(testClass(), map[string]interface{}{"ID": int64(1), "ThreadID": int64(5)})

	calls := 0
	rec.OnFieldChange("ThreadID", "Thread", func() { calls++ })

	tests := []struct {
		name      string
		value     interface{}
		wantCalls int
		wantDirty bool
	}{
		{name: "same value with another integer type", value: 5, wantCalls: 0, wantDirty: false},
		{name: "changed value", value: int64(6), wantCalls: 1, wantDirty: true},
		{name: "unchanged again", value: int64(6), wantCalls: 1, wantDirty: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec.Set("ThreadID", tt.value)
			if calls != tt.wantCalls {
				t.Errorf("hook calls = %d, want %d", calls, tt.wantCalls)
			}
			if rec.IsDirty() != tt.wantDirty {
				t.Errorf("IsDirty() = %v, want %v", rec.IsDirty(), tt.wantDirty)
			}
		})
	}
}

func TestRecord_HookKeyReplaces(t *testing.T) {
	rec := NewRecord(testClass())

	first, second := 0, 0
	rec.OnFieldChange("ThreadID", "Thread", func() { first++ })
	rec.OnFieldChange("ThreadID", "Thread", func() { second++ })
	rec.Set("ThreadID", int64(1))

	if first != 0 || second != 1 {
		t.Errorf("hooks ran first=%d second=%d, want 0 and 1", first, second)
	}
}

func TestRecord_AssignIDKeepsStateClean(t *testing.T) {
	rec := NewRecord(testClass())
	invalidated := false
	rec.OnFieldChange(PrimaryKey, "Posts", func() { invalidated = true })

	rec.AssignID(int64(10))
	if invalidated {
		t.Error("AssignID() should not run hooks")
	}
	if rec.IsDirty() {
		t.Error("AssignID() should not mark the record dirty")
	}

	rec.MarkSaved()
	if rec.IsNew() {
		t.Error("MarkSaved() should clear the phantom flag")
	}
}

func TestRecord_MarkDirtyIsNotAField(t *testing.T) {
	rec := LoadRecord(testClass(), map[string]interface{}{"ID": int64(1)})
	rec.MarkDirty()

	if !rec.IsDirty() {
		t.Error("MarkDirty() should make the record dirty")
	}
	if got := rec.DirtyFields(); len(got) != 0 {
		t.Errorf("DirtyFields() = %v, want none", got)
	}
}

func TestRelated_Indexed(t *testing.T) {
	class := testClass()
	a := LoadRecord(class, map[string]interface{}{"ID": int64(1), "Title": "x"})
	b := LoadRecord(class, map[string]interface{}{"ID": int64(2), "Title": "y"})
	c := LoadRecord(class, map[string]interface{}{"ID": int64(3), "Title": "x"})

	rel := Indexed([]*Record{a, b, c}, "Title")

	if len(rel.Keys) != 2 || rel.Keys[0] != "x" || rel.Keys[1] != "y" {
		t.Fatalf("Keys = %v, want [x y]", rel.Keys)
	}
	if rel.Index["x"] != c {
		t.Error("duplicate keys should keep the last record")
	}
	if len(rel.Records) != 2 || rel.Records[0] != c || rel.Records[1] != b {
		t.Errorf("Records not rebuilt in key order")
	}

	d := LoadRecord(class, map[string]interface{}{"ID": int64(4), "Title": "z"})
	appended := rel.Append([]*Record{d}, "Title")
	if len(appended.Records) != 3 || len(rel.Records) != 2 {
		t.Errorf("Append() should copy: got %d, original %d", len(appended.Records), len(rel.Records))
	}
}

func TestRelated_IsAbsent(t *testing.T) {
	if !One(nil).IsAbsent() {
		t.Error("One(nil) should be absent")
	}
	if !Many(nil).IsAbsent() {
		t.Error("Many(nil) should be absent")
	}
	if One(NewRecord(testClass())).IsAbsent() {
		t.Error("One(record) should not be absent")
	}
}
