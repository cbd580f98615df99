// Package utils provides small helpers shared by the transport layer.
package utils

import (
	"strconv"
	"strings"
)

// PageBounds configures ParsePage.
type PageBounds struct {
	DefaultSize int
	MaxSize     int
}

// ParsePage reads 1-based page and page size query values. Missing or
// unparsable values fall back to page 1 and DefaultSize; the size is kept
// within [1, MaxSize].
//
//	page, size := utils.ParsePage("3", "500", utils.PageBounds{DefaultSize: 20, MaxSize: 100}) // 3, 100
func ParsePage(pageStr, sizeStr string, b PageBounds) (page, size int) {
	page = atoi(pageStr, 1)
	if page < 1 {
		page = 1
	}
	size = atoi(sizeStr, b.DefaultSize)
	if size < 1 {
		size = 1
	}
	if b.MaxSize > 0 && size > b.MaxSize {
		size = b.MaxSize
	}
	return page, size
}

// Offset returns the row offset of page for the given size.
func Offset(page, size int) int {
	if page < 1 || size < 1 {
		return 0
	}
	return (page - 1) * size
}

func atoi(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
