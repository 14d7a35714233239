package httpdto

import "net/http"

// Response is the bounded shape every endpoint answers with.
type Response struct {
	StatusCode int `json:"statusCode"`
	Body       any `json:"body"`
}

func NewSuccessResponse(body any) Response {
	return Response{StatusCode: http.StatusOK, Body: body}
}

// Empty is a 200 with an empty body, the answer to an accepted command.
func Empty() Response {
	return Response{StatusCode: http.StatusOK, Body: ""}
}

// IsEmpty reports an empty success, written as a bare 200.
func (r Response) IsEmpty() bool {
	return r.StatusCode == http.StatusOK && r.Body == ""
}

func NewErrorResponse(code int, message string) Response {
	return Response{StatusCode: code, Body: message}
}

// ListResponse wraps list endpoints.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func NewListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items)}
}
