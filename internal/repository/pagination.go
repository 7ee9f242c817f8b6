package repository

// Page size bounds applied to every paginated query.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest carries caller-supplied pagination parameters. Tokens are
// positive page numbers; zero means the first page. Out-of-range sizes are
// clamped rather than rejected.
type PageRequest struct {
	Size  int `json:"pageSize"`
	Token int `json:"pageToken"`
}

// NewPageRequest clamps the given parameters into a valid request.
func NewPageRequest(size, token int) PageRequest {
	return PageRequest{Size: size, Token: token}
}

// Normalize resolves the effective page size and token.
func (r PageRequest) Normalize() (size, token int) {
	size = r.Size
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	token = r.Token
	if token < 1 {
		token = 1
	}
	return size, token
}

// Page is one window of a larger result set. NextPageToken is zero on the
// last page; otherwise it is the token to request the following page, and
// tokens increase monotonically across a full iteration.
type Page[T any] struct {
	Items         []T `json:"items"`
	PageToken     int `json:"pageToken"`
	PageSize      int `json:"pageSize"`
	NextPageToken int `json:"nextPageToken,omitempty"`
	Total         int `json:"total"`
}

// PageOf windows an already-materialized result set. Used by adapters that
// evaluate queries in memory; adapters with native cursors build pages
// directly.
func PageOf[T any](items []T, req PageRequest) *Page[T] {
	size, token := req.Normalize()

	start := (token - 1) * size
	if start > len(items) {
		start = len(items)
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}

	page := &Page[T]{
		Items:     items[start:end],
		PageToken: token,
		PageSize:  size,
		Total:     len(items),
	}
	if end < len(items) {
		page.NextPageToken = token + 1
	}
	return page
}
