package app

// Page is the pagination block attached to list responses.
type Page struct {
	CurrentPage  int  `json:"currentPage"`
	TotalPages   int  `json:"totalPages"`
	TotalItems   int  `json:"totalItems"`
	ItemsPerPage int  `json:"itemsPerPage"`
	HasNextPage  bool `json:"hasNextPage"`
	HasPrevPage  bool `json:"hasPrevPage"`
}

const defaultPageSize = 25

// paginate clamps page/perPage and returns the page descriptor plus the
// half-open slice bounds into a list of total elements.
func paginate(total, page, perPage int) (Page, int, int) {
	if perPage <= 0 {
		perPage = defaultPageSize
	}
	if perPage > 100 {
		perPage = 100
	}
	totalPages := (total + perPage - 1) / perPage
	if totalPages == 0 {
		totalPages = 1
	}
	if page <= 0 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * perPage
	end := start + perPage
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return Page{
		CurrentPage:  page,
		TotalPages:   totalPages,
		TotalItems:   total,
		ItemsPerPage: perPage,
		HasNextPage:  page < totalPages,
		HasPrevPage:  page > 1,
	}, start, end
}
