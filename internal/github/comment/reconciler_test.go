package comment

import (
	"errors"
	"strings"
	"testing"
)

const testMarker = "<!-- @x -->"

func TestReconcile_CreatesNewComment(t *testing.T) {
	id, body, err := Reconcile(nil, testMarker, "dev", "ok")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if id != 0 {
		t.Errorf("targetID = %d, want 0 (create new)", id)
	}

	want := "<!-- @x -->\n<!-- @x:start:dev -->\nok\n<!-- @x:end:dev -->"
	if body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestReconcile_ReplacesExistingBlock(t *testing.T) {
	existing := []Comment{{
		ID:   77,
		Body: "<!-- @x -->\n<!-- @x:start:dev -->\nok\n<!-- @x:end:dev -->",
	}}

	id, body, err := Reconcile(existing, testMarker, "dev", "changed")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if id != 77 {
		t.Errorf("targetID = %d, want 77", id)
	}

	want := "<!-- @x -->\n<!-- @x:start:dev -->\nchanged\n<!-- @x:end:dev -->"
	if body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestReconcile_AppendsSecondEnvironment(t *testing.T) {
	devBody := "<!-- @x -->\n<!-- @x:start:dev -->\nok\n<!-- @x:end:dev -->"
	existing := []Comment{{ID: 77, Body: devBody}}

	id, body, err := Reconcile(existing, testMarker, "prod", "ok2")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if id != 77 {
		t.Errorf("targetID = %d, want 77", id)
	}

	if !strings.HasPrefix(body, devBody) {
		t.Errorf("dev block not preserved verbatim:\n%s", body)
	}
	want := devBody + "\n<!-- @x:start:prod -->\nok2\n<!-- @x:end:prod -->"
	if body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestReconcile_AppendPreservesPriorContent(t *testing.T) {
	prior := "<!-- @x -->\nsome prose the bot wrote earlier\n- a list item"
	existing := []Comment{{ID: 5, Body: prior}}

	_, body, err := Reconcile(existing, testMarker, "test", "section")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if !strings.HasPrefix(body, prior) {
		t.Fatalf("prior content changed:\n%s", body)
	}
	if strings.Count(body, "<!-- @x:start:test -->") != 1 || strings.Count(body, "<!-- @x:end:test -->") != 1 {
		t.Errorf("want exactly one well-formed block for test, got:\n%s", body)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	_, first, err := Reconcile(nil, testMarker, "dev", "same")
	if err != nil {
		t.Fatalf("first Reconcile() error = %v", err)
	}

	_, second, err := Reconcile([]Comment{{ID: 1, Body: first}}, testMarker, "dev", "same")
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}
	if second != first {
		t.Errorf("re-reconciling identical section changed body:\nfirst:  %q\nsecond: %q", first, second)
	}
}

func TestReconcile_BlockOrderStableAcrossUpdates(t *testing.T) {
	_, body, err := Reconcile(nil, testMarker, "dev", "d1")
	if err != nil {
		t.Fatalf("Reconcile(dev) error = %v", err)
	}
	_, body, err = Reconcile([]Comment{{ID: 1, Body: body}}, testMarker, "prod", "p1")
	if err != nil {
		t.Fatalf("Reconcile(prod) error = %v", err)
	}

	// Updating dev must not move its block behind prod's.
	_, body, err = Reconcile([]Comment{{ID: 1, Body: body}}, testMarker, "dev", "d2")
	if err != nil {
		t.Fatalf("Reconcile(dev update) error = %v", err)
	}

	devIdx := strings.Index(body, "<!-- @x:start:dev -->")
	prodIdx := strings.Index(body, "<!-- @x:start:prod -->")
	if devIdx < 0 || prodIdx < 0 {
		t.Fatalf("missing block in body:\n%s", body)
	}
	if devIdx > prodIdx {
		t.Errorf("dev block moved after prod block:\n%s", body)
	}
	if !strings.Contains(body, "<!-- @x:start:dev -->\nd2\n<!-- @x:end:dev -->") {
		t.Errorf("dev block not updated in place:\n%s", body)
	}
	if strings.Contains(body, "d1") {
		t.Errorf("stale dev section survived:\n%s", body)
	}
}

func TestReconcile_MultilineSectionWithFences(t *testing.T) {
	section := "## dev\n\n```terraform\nPlan: 3 to add, 0 to change, 1 to destroy.\n```\n"
	_, body, err := Reconcile(nil, testMarker, "dev", section)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	replacement := "## dev\n\n```terraform\nNo changes.\n```\n"
	_, updated, err := Reconcile([]Comment{{ID: 2, Body: body}}, testMarker, "dev", replacement)
	if err != nil {
		t.Fatalf("Reconcile() replace error = %v", err)
	}
	if strings.Contains(updated, "3 to add") {
		t.Errorf("multi-line span not fully replaced:\n%s", updated)
	}
	if !strings.Contains(updated, "No changes.") {
		t.Errorf("replacement section missing:\n%s", updated)
	}
}

func TestReconcile_SectionWithDollarSigns(t *testing.T) {
	// Plan output regularly contains ${var.foo} interpolations; they must
	// land in the comment untouched.
	section := "cost estimate: $12.40\nname = \"${var.prefix}-app\""
	_, body, err := Reconcile(nil, testMarker, "dev", section)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	_, body, err = Reconcile([]Comment{{ID: 3, Body: body}}, testMarker, "dev", section)
	if err != nil {
		t.Fatalf("Reconcile() replace error = %v", err)
	}
	if !strings.Contains(body, section) {
		t.Errorf("section with $ not preserved:\n%s", body)
	}
}

func TestReconcile_FirstCanonicalCommentWins(t *testing.T) {
	existing := []Comment{
		{ID: 10, Body: "unrelated comment"},
		{ID: 11, Body: "<!-- @x -->\nfirst canonical"},
		{ID: 12, Body: "<!-- @x -->\nsecond canonical"},
	}

	id, body, err := Reconcile(existing, testMarker, "dev", "ok")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if id != 11 {
		t.Errorf("targetID = %d, want 11 (first canonical)", id)
	}
	if !strings.HasPrefix(body, "<!-- @x -->\nfirst canonical") {
		t.Errorf("body not based on first canonical comment:\n%s", body)
	}
}

func TestReconcile_MarkerMustBePrefix(t *testing.T) {
	existing := []Comment{{ID: 9, Body: "reply quoting <!-- @x --> in the middle"}}

	id, _, err := Reconcile(existing, testMarker, "dev", "ok")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if id != 0 {
		t.Errorf("targetID = %d, want 0: marker must match at start of body", id)
	}
}

func TestReconcile_MalformedMarkers(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "start without end",
			body: "<!-- @x -->\n<!-- @x:start:dev -->\npartial",
		},
		{
			name: "end without start",
			body: "<!-- @x -->\ndangling\n<!-- @x:end:dev -->",
		},
		{
			name: "end before start",
			body: "<!-- @x -->\n<!-- @x:end:dev -->\nmess\n<!-- @x:start:dev -->",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Reconcile([]Comment{{ID: 1, Body: tt.body}}, testMarker, "dev", "new")
			if !errors.Is(err, ErrMalformedComment) {
				t.Errorf("Reconcile() error = %v, want ErrMalformedComment", err)
			}
		})
	}
}

func TestReconcile_PrefixEnvironmentNamesStayIndependent(t *testing.T) {
	// With a plain marker the markers for "dev" are substrings of the
	// markers for "dev2"; matching must stay anchored to whole lines so
	// one environment never splices across the other's block.
	existing := []Comment{{
		ID:   5,
		Body: "@status\n@status:start:dev2\ndev2 content\n@status:end:dev2",
	}}

	id, body, err := Reconcile(existing, "@status", "dev", "dev content")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if id != 5 {
		t.Errorf("targetID = %d, want 5", id)
	}

	want := "@status\n@status:start:dev2\ndev2 content\n@status:end:dev2" +
		"\n@status:start:dev\ndev content\n@status:end:dev"
	if body != want {
		t.Errorf("body = %q, want %q", body, want)
	}

	// And the other direction: updating dev2 must not touch dev.
	id2, body2, err := Reconcile([]Comment{{ID: 5, Body: body}}, "@status", "dev2", "dev2 updated")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if id2 != 5 {
		t.Errorf("targetID = %d, want 5", id2)
	}
	want2 := "@status\n@status:start:dev2\ndev2 updated\n@status:end:dev2" +
		"\n@status:start:dev\ndev content\n@status:end:dev"
	if body2 != want2 {
		t.Errorf("body = %q, want %q", body2, want2)
	}
}

func TestReconcile_PlainMarkerDerivation(t *testing.T) {
	// Markers that are not HTML comments get a plain suffix.
	id, body, err := Reconcile(nil, "@status", "dev", "ok")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if id != 0 {
		t.Errorf("targetID = %d, want 0", id)
	}
	want := "@status\n@status:start:dev\nok\n@status:end:dev"
	if body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}
