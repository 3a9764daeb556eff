package domain

// DefaultPageSize — размер страницы по умолчанию для списков.
const DefaultPageSize = 10

// Page задаёт номер страницы (с единицы) и её размер.
type Page struct {
	Number int
	Size   int
}

// Normalize подставляет значения по умолчанию для некорректных параметров.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	return p
}

// Offset возвращает смещение первой записи страницы.
func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Number - 1) * p.Size
}

// Slice вырезает страницу из уже отсортированного набора.
func Slice[T any](items []T, p Page) []T {
	p = p.Normalize()
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.Size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
