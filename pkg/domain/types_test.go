package domain

import (
	"testing"
	"time"
)

func TestProductPatchApplyLeavesOmittedFieldsUntouched(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	product := Product{
		ID:        "p-1",
		TitleAr:   "قلم",
		TitleEn:   "Pen",
		ContentAr: "<p>أزرق</p>",
		ContentEn: "<p>Blue</p>",
		Images:    []string{"a.png", "b.png"},
		VideoCode: "abc",
		CreatedAt: created,
	}
	title := "Blue pen"
	images := []string{"c.png"}
	got := ProductPatch{TitleEn: &title, Images: &images}.Apply(product)

	if got.TitleEn != "Blue pen" {
		t.Fatalf("titleEn = %q", got.TitleEn)
	}
	if got.TitleAr != "قلم" || got.ContentEn != "<p>Blue</p>" || got.VideoCode != "abc" {
		t.Fatalf("untouched fields changed: %+v", got)
	}
	if len(got.Images) != 1 || got.Images[0] != "c.png" {
		t.Fatalf("images = %v", got.Images)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("createdAt changed: %v", got.CreatedAt)
	}
	images[0] = "mutated.png"
	if got.Images[0] != "c.png" {
		t.Fatalf("patched images share backing array with caller")
	}
}

func TestProductPatchIsEmpty(t *testing.T) {
	if !(ProductPatch{}).IsEmpty() {
		t.Fatalf("zero patch should be empty")
	}
	code := ""
	if (ProductPatch{VideoCode: &code}).IsEmpty() {
		t.Fatalf("patch clearing the video code is not empty")
	}
}

func TestProductHelpers(t *testing.T) {
	p := Product{TitleAr: "كتاب", TitleEn: "Notebook", VideoCode: " xyz "}
	if p.Thumbnail() != "" {
		t.Fatalf("thumbnail without images should be empty")
	}
	p.Images = []string{"first.png", "second.png"}
	if p.Thumbnail() != "first.png" {
		t.Fatalf("thumbnail = %q", p.Thumbnail())
	}
	if got := p.VideoURL(); got != "https://youtube.com/watch?v=xyz" {
		t.Fatalf("video url = %q", got)
	}
	if !p.MatchesSearch("NOTE") || !p.MatchesSearch("كتا") || p.MatchesSearch("pen") {
		t.Fatalf("search matching is wrong")
	}
	if !p.MatchesSearch("  ") {
		t.Fatalf("blank query should match everything")
	}
}

func TestPlainTextAndExcerpt(t *testing.T) {
	content := "<h2>Title</h2><p>Hello&nbsp;<strong>world</strong></p><script>alert(1)</script><ul><li>one</li><li>two</li></ul>"
	if got := PlainText(content); got != "Title Hello world one two" {
		t.Fatalf("plain text = %q", got)
	}
	if got := Excerpt("<p>abcdefgh</p>", 4); got != "abcd…" {
		t.Fatalf("excerpt = %q", got)
	}
	if got := Excerpt("short", 10); got != "short" {
		t.Fatalf("excerpt = %q", got)
	}
}
