package domain

// OperationOutcome is the classified result of one executed operation.
// Success carries Data; failure carries the typed error and its kind so
// handlers can map it to a response class without unwrapping.
type OperationOutcome struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	ErrorKind ErrorType   `json:"error_kind,omitempty"`
	Err       error       `json:"-"`
}

func NewSuccessOutcome(data interface{}) *OperationOutcome {
	return &OperationOutcome{
		Success: true,
		Data:    data,
	}
}

func NewFailureOutcome(err error) *OperationOutcome {
	return &OperationOutcome{
		Success:   false,
		ErrorKind: Classify(err),
		Err:       err,
	}
}

func (o *OperationOutcome) IsConflict() bool {
	return !o.Success && o.ErrorKind == ErrorTypeConflict
}
