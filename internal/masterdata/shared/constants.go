package shared

// List paging bounds and sort directions accepted by the registry endpoints.
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 200

	SortDesc = "desc"
)
