package catalog

// WindowSize is the number of consecutive page buttons around the current page.
const WindowSize = 5

// WindowItem is one control of the page-number bar: either a page number
// or an ellipsis gap.
type WindowItem struct {
	Page     int  `json:"page,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty"`
	Current  bool `json:"current,omitempty"`
}

// Window lays out the page-number bar for current of total pages. Page 1
// and the last page are always present, with an ellipsis wherever they
// are not adjacent to the sliding window of WindowSize pages centred on
// current. The window is shifted, not shrunk, at either end.
func Window(current, total int) []WindowItem {
	total = max(total, 1)
	current = min(max(current, 1), total)

	if total <= WindowSize {
		items := make([]WindowItem, 0, total)
		for p := 1; p <= total; p++ {
			items = append(items, WindowItem{Page: p, Current: p == current})
		}
		return items
	}

	start := current - WindowSize/2
	end := start + WindowSize - 1
	if start < 1 {
		start, end = 1, WindowSize
	}
	if end > total {
		start, end = total-WindowSize+1, total
	}

	items := make([]WindowItem, 0, WindowSize+4)
	if start > 1 {
		items = append(items, WindowItem{Page: 1})
		if start > 2 {
			items = append(items, WindowItem{Ellipsis: true})
		}
	}
	for p := start; p <= end; p++ {
		items = append(items, WindowItem{Page: p, Current: p == current})
	}
	if end < total {
		if end < total-1 {
			items = append(items, WindowItem{Ellipsis: true})
		}
		items = append(items, WindowItem{Page: total})
	}
	return items
}
