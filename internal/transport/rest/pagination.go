package rest

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

// pageResponse — конверт постраничного списка.
type pageResponse[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// pageFrom читает ?page=N. Некорректный номер страницы даёт 404, как и страница за пределами списка.
func (h *Handler) pageFrom(r *http.Request) (domain.Page, error) {
	page := domain.Page{Number: 1, Size: h.pageSize}
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return page, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return domain.Page{}, errInvalidPage
	}
	page.Number = n
	return page, nil
}

func paginate[T any, S any](r *http.Request, page domain.Page, total int, items []S, convert func(S) T) (pageResponse[T], error) {
	if page.Number > 1 && page.Offset() >= total {
		return pageResponse[T]{}, errInvalidPage
	}

	results := make([]T, 0, len(items))
	for _, item := range items {
		results = append(results, convert(item))
	}

	resp := pageResponse[T]{Count: total, Results: results}
	if page.Offset()+len(items) < total {
		next := pageURL(r, page.Number+1)
		resp.Next = &next
	}
	if page.Number > 1 {
		prev := pageURL(r, page.Number-1)
		resp.Previous = &prev
	}
	return resp, nil
}

func pageURL(r *http.Request, number int) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}

	query := r.URL.Query()
	if number <= 1 {
		query.Del("page")
	} else {
		query.Set("page", strconv.Itoa(number))
	}

	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: query.Encode()}
	return u.String()
}
