package handlers

// Response is the uniform API envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func CreateSuccessResponse(data any) Response {
	return Response{Success: true, Data: data}
}

func CreateErrorResponse(code, message string) Response {
	return Response{Success: false, Error: code, Message: message}
}
