package chartresult

// Response is the chart-data success envelope.
type Response struct {
	Success      bool     `json:"success"`
	Data         []Row    `json:"data"`
	Count        int      `json:"count"`
	IsMultiValue bool     `json:"isMultiValue"`
	YAxes        []string `json:"yAxes"`
}

// NewResponse wraps rows for the value axes that produced them.
// IsMultiValue follows the number of y_value_* keys each row carries.
func NewResponse(rows []Row, yAxes []string) Response {
	if rows == nil {
		rows = []Row{}
	}
	axes := append([]string{}, yAxes...)
	return Response{
		Success:      true,
		Data:         rows,
		Count:        len(rows),
		IsMultiValue: len(axes) > 1,
		YAxes:        axes,
	}
}

// ErrorResponse is the failure envelope shared by all chart endpoints.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewErrorResponse builds a failure envelope.
func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{Success: false, Error: err.Error()}
}
