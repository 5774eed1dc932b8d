package domain

import (
	"strings"
	"time"
)

const youtubeWatchURL = "https://youtube.com/watch?v="

type Language string

const (
	LangArabic  Language = "ar"
	LangEnglish Language = "en"
)

type Product struct {
	ID        string    `json:"id"`
	TitleAr   string    `json:"titleAr"`
	TitleEn   string    `json:"titleEn"`
	ContentAr string    `json:"contentAr"`
	ContentEn string    `json:"contentEn"`
	Images    []string  `json:"images"`
	VideoCode string    `json:"videoCode,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Thumbnail returns the first gallery image, or "" for a product without images.
func (p Product) Thumbnail() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// VideoURL returns the public watch link for the product video, if any.
func (p Product) VideoURL() string {
	code := strings.TrimSpace(p.VideoCode)
	if code == "" {
		return ""
	}
	return youtubeWatchURL + code
}

// MatchesSearch reports whether either title contains q, ignoring case.
func (p Product) MatchesSearch(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.TitleAr), q) ||
		strings.Contains(strings.ToLower(p.TitleEn), q)
}

// Title returns the title in the requested language.
func (p Product) Title(lang Language) string {
	if lang == LangArabic {
		return p.TitleAr
	}
	return p.TitleEn
}

// Summary returns at most maxRunes runes of the content as plain text.
func (p Product) Summary(lang Language, maxRunes int) string {
	content := p.ContentEn
	if lang == LangArabic {
		content = p.ContentAr
	}
	return Excerpt(content, maxRunes)
}

// ProductInput carries the text fields accepted on create.
type ProductInput struct {
	TitleAr   string `json:"titleAr"`
	TitleEn   string `json:"titleEn"`
	ContentAr string `json:"contentAr"`
	ContentEn string `json:"contentEn"`
	VideoCode string `json:"videoCode"`
}

// ProductPatch is a partial update. Nil fields are left untouched.
type ProductPatch struct {
	TitleAr   *string   `json:"titleAr,omitempty"`
	TitleEn   *string   `json:"titleEn,omitempty"`
	ContentAr *string   `json:"contentAr,omitempty"`
	ContentEn *string   `json:"contentEn,omitempty"`
	Images    *[]string `json:"images,omitempty"`
	VideoCode *string   `json:"videoCode,omitempty"`
}

// IsEmpty reports whether the patch carries no field at all.
func (p ProductPatch) IsEmpty() bool {
	return p.TitleAr == nil && p.TitleEn == nil && p.ContentAr == nil &&
		p.ContentEn == nil && p.Images == nil && p.VideoCode == nil
}

// Apply returns a copy of product with the supplied patch fields merged in.
func (p ProductPatch) Apply(product Product) Product {
	if p.TitleAr != nil {
		product.TitleAr = *p.TitleAr
	}
	if p.TitleEn != nil {
		product.TitleEn = *p.TitleEn
	}
	if p.ContentAr != nil {
		product.ContentAr = *p.ContentAr
	}
	if p.ContentEn != nil {
		product.ContentEn = *p.ContentEn
	}
	if p.Images != nil {
		product.Images = append([]string(nil), (*p.Images)...)
	}
	if p.VideoCode != nil {
		product.VideoCode = *p.VideoCode
	}
	return product
}

// SheetFile is a workbook held in the sheets bucket.
type SheetFile struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	UploadedAt  time.Time `json:"uploadedAt"`
	URL         string    `json:"url"`
	Size        int64     `json:"size"`
}

// ShareLink is a read-only viewer link plus a messaging deep link carrying it.
type ShareLink struct {
	Name     string `json:"name"`
	ViewURL  string `json:"viewUrl"`
	ShareURL string `json:"shareUrl"`
}
