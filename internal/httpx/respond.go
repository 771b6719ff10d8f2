package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

type errorResp struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(err error) int {
	switch orders.KindOf(err) {
	case orders.KindValidation:
		return http.StatusBadRequest
	case orders.KindNotFound:
		return http.StatusNotFound
	case orders.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError never leaks the cause of internal errors; the services log it.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), errorResp{Error: orders.PublicMessage(err)})
}

// pageFrom reads ?page=&limit=; junk values fall back to the defaults.
func pageFrom(r *http.Request) orders.Page {
	n, _ := strconv.Atoi(r.URL.Query().Get("page"))
	l, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return orders.NormalizePage(n, l)
}

type pageResp[T any] struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
	Data       []T `json:"data"`
}

func newPageResp[T any](page orders.Page, total int, data []T) pageResp[T] {
	if data == nil {
		data = []T{}
	}
	return pageResp[T]{
		Page:       page.Number,
		Limit:      page.Limit,
		Total:      total,
		TotalPages: page.TotalPages(total),
		Data:       data,
	}
}
