package models

import (
	"net/http"
	"strings"
)

// Path prefixes that get a dedicated budget regardless of method.
var categoryPrefixes = []struct {
	prefix   string
	category Category
}{
	{"/api/auth", CategoryAuth},
	{"/auth", CategoryAuth},
	{"/api/upload", CategoryUpload},
	{"/api/documents/upload", CategoryUpload},
	{"/api/devis", CategoryFinancial},
	{"/api/factures", CategoryFinancial},
	{"/api/paiements", CategoryFinancial},
}

// CategorizeRequest picks the category of a request that was not given one
// explicitly. Dedicated prefixes win; otherwise safe methods count as reads
// and everything else as writes.
func CategorizeRequest(method, path string) Category {
	p := strings.ToLower(path)
	for _, cp := range categoryPrefixes {
		if p == cp.prefix || strings.HasPrefix(p, cp.prefix+"/") {
			return cp.category
		}
	}
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return CategoryRead
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return CategoryWrite
	}
	return CategoryDefault
}
