package models

// Page is the metadata every paginated list response carries. Pages is
// always at least 1 so an empty first page is a valid, non-error response.
type Page struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
	Pages   int `json:"pages"`
}

// NewPage normalizes 1-indexed pagination metadata.
func NewPage(page, perPage, total int) Page {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	pages := (total + perPage - 1) / perPage
	if pages < 1 {
		pages = 1
	}
	return Page{Page: page, PerPage: perPage, Total: total, Pages: pages}
}

// Clamp normalizes a requested page/size pair against a default and cap.
func Clamp(page, perPage, def, max int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = def
	}
	if perPage > max {
		perPage = max
	}
	return page, perPage
}
