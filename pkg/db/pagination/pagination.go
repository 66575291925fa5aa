package pagination

type Pagination struct {
	Page  int `form:"page,default=1" validate:"gte=1"`
	Limit int `form:"limit,default=10" validate:"gte=1,lte=250"`
}

type PageInfo struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int64 `json:"total_pages"`
	Total      int64 `json:"total"`
}

func (p Pagination) Offset() int {
	page := p.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * p.PageSize()
}

func (p Pagination) PageSize() int {
	if p.Limit < 1 {
		return 10
	}
	if p.Limit > 250 {
		return 250
	}
	return p.Limit
}

func BuildPageInfo(p Pagination, total int64) PageInfo {
	size := int64(p.PageSize())
	pages := total / size
	if total%size != 0 {
		pages++
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	return PageInfo{
		Page:       page,
		Limit:      int(size),
		TotalPages: pages,
		Total:      total,
	}
}
